package usage

import "strings"

// Per-1K-token prices in USD, prompt and completion.
type rate struct {
	prompt     float64
	completion float64
}

var modelRates = map[string]rate{
	"gpt-4o":        {prompt: 0.005, completion: 0.015},
	"gpt-4o-mini":   {prompt: 0.00015, completion: 0.0006},
	"gpt-4":         {prompt: 0.03, completion: 0.06},
	"gpt-3.5-turbo": {prompt: 0.0015, completion: 0.002},
}

// Unknown models are billed at a middle-of-the-road rate rather than zero
// so the totals stay an overestimate instead of silently undercounting.
var fallbackRate = rate{prompt: 0.002, completion: 0.006}

// Cost estimates the price of one call in USD. Model names are matched on
// their prefix so dated snapshots ("gpt-4o-2024-08-06") price like their
// base model.
func Cost(model string, promptTokens, completionTokens int) float64 {
	r, ok := modelRates[model]
	if !ok {
		// Longest base wins so gpt-4o-mini snapshots do not price as
		// gpt-4o.
		best := ""
		for base, known := range modelRates {
			if strings.HasPrefix(model, base+"-") && len(base) > len(best) {
				best, r, ok = base, known, true
			}
		}
	}
	if !ok {
		r = fallbackRate
	}
	return float64(promptTokens)/1000*r.prompt + float64(completionTokens)/1000*r.completion
}
