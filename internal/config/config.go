package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config carries every tunable the pipeline reads. Values come from three
// layers: built-in defaults, environment variables, and an optional
// jestir.yaml project file. The file wins over the environment.
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Graph      GraphConfig      `yaml:"graph"`
	Matcher    MatcherConfig    `yaml:"matcher"`
	Usage      UsageConfig      `yaml:"usage"`
}

// ExtractionConfig configures the language-model collaborator used for
// entity and relationship extraction.
type ExtractionConfig struct {
	APIKey      string        `yaml:"api_key" env:"OPENAI_EXTRACTION_API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"OPENAI_EXTRACTION_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model       string        `yaml:"model" env:"OPENAI_EXTRACTION_MODEL" envDefault:"gpt-4o-mini"`
	MaxTokens   int           `yaml:"max_tokens" env:"OPENAI_EXTRACTION_MAX_TOKENS" envDefault:"1000"`
	Temperature float64       `yaml:"temperature" env:"OPENAI_EXTRACTION_TEMPERATURE" envDefault:"0.1"`
	Timeout     time.Duration `yaml:"timeout" env:"OPENAI_EXTRACTION_TIMEOUT" envDefault:"60s"`
	MaxAttempts int           `yaml:"max_attempts" env:"OPENAI_EXTRACTION_MAX_ATTEMPTS" envDefault:"3"`
}

// GraphConfig configures the knowledge-graph retrieval collaborator.
type GraphConfig struct {
	BaseURL       string        `yaml:"base_url" env:"LIGHTRAG_BASE_URL" envDefault:"http://localhost:9621"`
	APIKey        string        `yaml:"api_key" env:"LIGHTRAG_API_KEY"`
	Timeout       time.Duration `yaml:"timeout" env:"LIGHTRAG_TIMEOUT" envDefault:"30s"`
	MaxAttempts   int           `yaml:"max_attempts" env:"LIGHTRAG_MAX_ATTEMPTS" envDefault:"3"`
	RatePerSecond float64       `yaml:"rate_per_second" env:"LIGHTRAG_RATE_PER_SECOND" envDefault:"5"`
	QueryMode     string        `yaml:"query_mode" env:"LIGHTRAG_QUERY_MODE" envDefault:"mix"`
}

// MatcherConfig holds the confidence thresholds for entity matching. These
// materially change false-accept vs false-reject behavior, so operators can
// tune them per deployment.
type MatcherConfig struct {
	ExactThreshold      float64 `yaml:"exact_threshold" env:"JESTIR_MATCH_EXACT" envDefault:"0.95"`
	HighThreshold       float64 `yaml:"high_threshold" env:"JESTIR_MATCH_HIGH" envDefault:"0.8"`
	LowThreshold        float64 `yaml:"low_threshold" env:"JESTIR_MATCH_LOW" envDefault:"0.5"`
	TypeMismatchPenalty float64 `yaml:"type_mismatch_penalty" env:"JESTIR_MATCH_TYPE_PENALTY" envDefault:"0.5"`
}

// UsageConfig configures the token-usage ledger. The DSN scheme selects the
// backend: sqlite:// or postgres://.
type UsageConfig struct {
	DSN string `yaml:"dsn" env:"JESTIR_USAGE_DSN" envDefault:"sqlite://jestir-usage.db"`
}

// Load builds a Config from defaults, the environment, and the optional
// project file at path. A missing file is not an error; an unreadable or
// invalid one is.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Graph.BaseURL) == "" {
		return fmt.Errorf("graph base_url is required")
	}
	if cfg.Graph.Timeout <= 0 {
		return fmt.Errorf("graph timeout must be positive")
	}
	if cfg.Graph.MaxAttempts < 1 {
		return fmt.Errorf("graph max_attempts must be at least 1")
	}
	if cfg.Extraction.MaxAttempts < 1 {
		return fmt.Errorf("extraction max_attempts must be at least 1")
	}

	m := cfg.Matcher
	for name, value := range map[string]float64{
		"exact_threshold":       m.ExactThreshold,
		"high_threshold":        m.HighThreshold,
		"low_threshold":         m.LowThreshold,
		"type_mismatch_penalty": m.TypeMismatchPenalty,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("matcher %s must be within [0, 1]", name)
		}
	}
	if m.LowThreshold > m.HighThreshold || m.HighThreshold > m.ExactThreshold {
		return fmt.Errorf("matcher thresholds must satisfy low <= high <= exact")
	}

	if strings.TrimSpace(cfg.Usage.DSN) == "" {
		return fmt.Errorf("usage dsn is required")
	}
	return nil
}
