package config

// Config holds folio configuration.
type Config struct {
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
	Storage      StorageCfg                `mapstructure:"storage" yaml:"storage"`
	PDF          PDFCfg                    `mapstructure:"pdf" yaml:"pdf"`
	Pipeline     PipelineCfg               `mapstructure:"pipeline" yaml:"pipeline"`
	OCRProviders map[string]OCRProviderCfg `mapstructure:"ocr_providers" yaml:"ocr_providers"`
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// StorageCfg configures persistence.
type StorageCfg struct {
	// Path is the SQLite database file. Jobs and book/page state share it.
	Path string `mapstructure:"path" yaml:"path"`
}

// PDFCfg configures the PDF extractor and its caches.
type PDFCfg struct {
	CacheSize         int `mapstructure:"cache_size" yaml:"cache_size"`                     // Parsed-document cache entries
	CacheTTLMinutes   int `mapstructure:"cache_ttl_minutes" yaml:"cache_ttl_minutes"`       // Parsed-document cache expiry
	RenderDPI         int `mapstructure:"render_dpi" yaml:"render_dpi"`                     // Rasterization resolution
	BookMetaCacheSize int `mapstructure:"book_meta_cache_size" yaml:"book_meta_cache_size"` // bookId -> pdf metadata entries
}

// PipelineCfg configures fan-out and the per-page pipeline.
type PipelineCfg struct {
	BatchSize             int    `mapstructure:"batch_size" yaml:"batch_size"`                         // Page jobs enqueued per batch
	PageConcurrency       int    `mapstructure:"page_concurrency" yaml:"page_concurrency"`             // Concurrent page workers
	DefaultProvider       string `mapstructure:"default_provider" yaml:"default_provider"`             // LLM provider for unpinned stages
	FallbackProvider      string `mapstructure:"fallback_provider" yaml:"fallback_provider"`           // Tried once when the default returns null
	OCRProvider           string `mapstructure:"ocr_provider" yaml:"ocr_provider"`                     // OCR provider name
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"` // Per-call HTTP timeout
}

// OCRProviderCfg configures an OCR provider.
type OCRProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "mistral-ocr"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "openrouter", "openai"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`     // Optional API base override
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "0.0.0.0",
			Port: 8585,
		},
		Storage: StorageCfg{
			Path: "folio.db",
		},
		PDF: PDFCfg{
			CacheSize:         20,
			CacheTTLMinutes:   120,
			RenderDPI:         200,
			BookMetaCacheSize: 1000,
		},
		Pipeline: PipelineCfg{
			BatchSize:             10,
			PageConcurrency:       10,
			DefaultProvider:       "openrouter",
			FallbackProvider:      "openai",
			OCRProvider:           "mistral",
			RequestTimeoutSeconds: 120,
		},
		OCRProviders: map[string]OCRProviderCfg{
			"mistral": {
				Type:      "mistral-ocr",
				Model:     "mistral-ocr-latest",
				APIKey:    "${MISTRAL_API_KEY}",
				RateLimit: 6.0,
				Enabled:   true,
			},
		},
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:      "openrouter",
				Model:     "anthropic/claude-sonnet-4",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 10.0,
				Enabled:   true,
			},
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 8.0,
				Enabled:   true,
			},
		},
	}
}

// GetOCRProvider returns an OCR provider config by name.
func (c *Config) GetOCRProvider(name string) (OCRProviderCfg, bool) {
	cfg, ok := c.OCRProviders[name]
	return cfg, ok
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
