package config

import (
	"testing"
	"time"
)

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("FOLIO_TEST_KEY", "secret-123")
	t.Setenv("FOLIO_TEST_OTHER", "other")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"no refs", "plain-value", "plain-value"},
		{"single ref", "${FOLIO_TEST_KEY}", "secret-123"},
		{"embedded ref", "Bearer ${FOLIO_TEST_KEY}", "Bearer secret-123"},
		{"multiple refs", "${FOLIO_TEST_KEY}:${FOLIO_TEST_OTHER}", "secret-123:other"},
		{"unset ref resolves empty", "${FOLIO_TEST_UNSET_VAR}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEnvVars(tt.input); got != tt.want {
				t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pipeline.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.PageConcurrency != 10 {
		t.Errorf("PageConcurrency = %d, want 10", cfg.Pipeline.PageConcurrency)
	}
	if cfg.PDF.CacheSize != 20 {
		t.Errorf("PDF.CacheSize = %d, want 20", cfg.PDF.CacheSize)
	}
	if cfg.PDF.BookMetaCacheSize != 1000 {
		t.Errorf("PDF.BookMetaCacheSize = %d, want 1000", cfg.PDF.BookMetaCacheSize)
	}

	if _, ok := cfg.GetLLMProvider(cfg.Pipeline.DefaultProvider); !ok {
		t.Errorf("default provider %q has no config entry", cfg.Pipeline.DefaultProvider)
	}
	if _, ok := cfg.GetLLMProvider(cfg.Pipeline.FallbackProvider); !ok {
		t.Errorf("fallback provider %q has no config entry", cfg.Pipeline.FallbackProvider)
	}
	if _, ok := cfg.GetOCRProvider(cfg.Pipeline.OCRProvider); !ok {
		t.Errorf("ocr provider %q has no config entry", cfg.Pipeline.OCRProvider)
	}
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("FOLIO_TEST_API_KEY", "resolved-key")

	cfg := DefaultConfig()
	cfg.LLMProviders["openrouter"] = LLMProviderCfg{
		Type:      "openrouter",
		Model:     "test-model",
		APIKey:    "${FOLIO_TEST_API_KEY}",
		RateLimit: 5.0,
		Enabled:   true,
	}

	reg := cfg.ToProviderRegistryConfig()

	llm, ok := reg.LLMProviders["openrouter"]
	if !ok {
		t.Fatal("openrouter missing from registry config")
	}
	if llm.APIKey != "resolved-key" {
		t.Errorf("APIKey = %q, want resolved env value", llm.APIKey)
	}
	if llm.RateLimit != 5.0 {
		t.Errorf("RateLimit = %v, want 5.0", llm.RateLimit)
	}
	if reg.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v, want 120s", reg.Timeout)
	}
}
