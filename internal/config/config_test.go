package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Extraction.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected default model: %q", cfg.Extraction.Model)
	}
	if cfg.Graph.BaseURL != "http://localhost:9621" {
		t.Fatalf("unexpected default graph url: %q", cfg.Graph.BaseURL)
	}
	if cfg.Graph.Timeout != 30*time.Second {
		t.Fatalf("unexpected default graph timeout: %v", cfg.Graph.Timeout)
	}
	if cfg.Matcher.ExactThreshold != 0.95 || cfg.Matcher.HighThreshold != 0.8 || cfg.Matcher.LowThreshold != 0.5 {
		t.Fatalf("unexpected default matcher thresholds: %+v", cfg.Matcher)
	}
	if cfg.Matcher.TypeMismatchPenalty != 0.5 {
		t.Fatalf("unexpected default type penalty: %v", cfg.Matcher.TypeMismatchPenalty)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LIGHTRAG_BASE_URL", "http://graph.internal:9000")
	t.Setenv("JESTIR_MATCH_HIGH", "0.9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Graph.BaseURL != "http://graph.internal:9000" {
		t.Fatalf("env override ignored: %q", cfg.Graph.BaseURL)
	}
	if cfg.Matcher.HighThreshold != 0.9 {
		t.Fatalf("env override ignored: %v", cfg.Matcher.HighThreshold)
	}
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("LIGHTRAG_BASE_URL", "http://from-env:1")

	path := filepath.Join(t.TempDir(), "jestir.yaml")
	contents := "graph:\n  base_url: http://from-file:2\nmatcher:\n  low_threshold: 0.4\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Graph.BaseURL != "http://from-file:2" {
		t.Fatalf("file should win over env, got %q", cfg.Graph.BaseURL)
	}
	if cfg.Matcher.LowThreshold != 0.4 {
		t.Fatalf("file value ignored: %v", cfg.Matcher.LowThreshold)
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
}

func TestLoad_InvalidThresholds(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		want     string
	}{
		{
			name:     "out of range",
			contents: "matcher:\n  high_threshold: 1.5\n",
			want:     "within [0, 1]",
		},
		{
			name:     "bad ordering",
			contents: "matcher:\n  low_threshold: 0.9\n  high_threshold: 0.6\n",
			want:     "low <= high <= exact",
		},
		{
			name:     "zero attempts",
			contents: "graph:\n  max_attempts: 0\n",
			want:     "max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "jestir.yaml")
			if err := os.WriteFile(path, []byte(tt.contents), 0o600); err != nil {
				t.Fatalf("writing config: %v", err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
