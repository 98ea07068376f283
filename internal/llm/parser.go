package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractedEntity is one entity as reported by the model. IDs are local to
// the response; the merger remaps them into the context's id space.
type ExtractedEntity struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Subtype     string         `json:"subtype"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties"`
}

// ExtractedRelationship is one relationship as reported by the model.
// Subject and object tolerate both a scalar and a list.
type ExtractedRelationship struct {
	Type     string         `json:"type"`
	Subject  StringList     `json:"subject"`
	Object   StringList     `json:"object"`
	Location string         `json:"location"`
	Metadata map[string]any `json:"metadata"`
}

// Extraction is the parsed result of one extraction call.
type Extraction struct {
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// StringList decodes from either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = StringList{s}
	return nil
}

// ParseExtraction parses the model's extraction response. Models add prose
// and markdown fences around the JSON despite instructions, so the first
// complete JSON object is carved out before decoding. Entities without a
// name or with an unknown type are dropped, not fatal.
func ParseExtraction(text string) (*Extraction, error) {
	payload := extractJSONObject(text)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in extraction response")
	}

	var raw Extraction
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}

	out := &Extraction{}
	for _, e := range raw.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		switch e.Type {
		case "character", "location", "item":
		default:
			continue
		}
		out.Entities = append(out.Entities, e)
	}
	for _, r := range raw.Relationships {
		if strings.TrimSpace(r.Type) == "" || len(r.Subject) == 0 || len(r.Object) == 0 {
			continue
		}
		out.Relationships = append(out.Relationships, r)
	}
	return out, nil
}

// ParseLabels parses the candidate-label response: ideally a JSON array,
// but newline- or comma-separated lists are accepted as a fallback.
func ParseLabels(text string) ([]string, error) {
	if payload := extractJSONArray(text); payload != "" {
		var labels []string
		if err := json.Unmarshal([]byte(payload), &labels); err == nil {
			return trimNonEmpty(labels), nil
		}
	}

	cleaned := strings.NewReplacer("```json", "", "```", "").Replace(text)
	var labels []string
	for _, line := range strings.FieldsFunc(cleaned, func(r rune) bool { return r == '\n' || r == ',' }) {
		line = strings.Trim(strings.TrimSpace(line), `-*"'`)
		if line != "" {
			labels = append(labels, strings.TrimSpace(line))
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels in response")
	}
	return labels, nil
}

// extractJSONObject returns the first balanced JSON object in text, or "".
func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

// extractJSONArray returns the first balanced JSON array in text, or "".
func extractJSONArray(text string) string {
	return extractBalanced(text, '[', ']')
}

func extractBalanced(text string, open, closing byte) string {
	text = strings.NewReplacer("```json", "", "```", "").Replace(text)
	start := strings.IndexByte(text, open)
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == closing:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func trimNonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
