// Package config loads enricher settings from an optional YAML file with environment
// overrides. API keys are read from the environment only.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted by PROVIDER.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderStub      = "stub"
)

// Config is the effective configuration of the enricher.
type Config struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"console"`

	Provider  string          `yaml:"provider" env:"PROVIDER" env-default:"gemini"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`

	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey          string `yaml:"-" env:"GEMINI_API_KEY"`
	Model           string `yaml:"model" env:"GEMINI_MODEL" env-default:"gemini-2.5-flash"`
	BaseURL         string `yaml:"base_url" env:"GEMINI_BASE_URL"`
	SearchGrounding bool   `yaml:"search_grounding" env:"GEMINI_SEARCH_GROUNDING" env-default:"false"`
}

// OpenAIConfig configures the OpenAI-compatible provider. BaseURL may point at any
// compatible endpoint, including the mock provider.
type OpenAIConfig struct {
	APIKey  string `yaml:"-" env:"OPENAI_API_KEY"`
	Model   string `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	Model   string `yaml:"model" env:"ANTHROPIC_MODEL" env-default:"claude-3-5-haiku-latest"`
	BaseURL string `yaml:"base_url" env:"ANTHROPIC_BASE_URL"`
}

// PipelineConfig holds per-run settings.
type PipelineConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"60s"`
	// RateLimitRPS caps provider calls across all jobs. 0 disables the limiter.
	RateLimitRPS           float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"0"`
	DefaultLanguage        string   `yaml:"default_language" env:"DEFAULT_LANGUAGE" env-default:"Italian"`
	ProtectedExtraKeywords []string `yaml:"protected_extra_keywords" env:"PROTECTED_EXTRA_KEYWORDS" env-separator:","`
	PreviewRows            int      `yaml:"preview_rows" env:"PREVIEW_ROWS" env-default:"15"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"SERVER_ADDR" env-default:":8080"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"10485760"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" env:"MAX_CONCURRENT_JOBS" env-default:"2"`
	JobSlotWait       time.Duration `yaml:"job_slot_wait" env:"JOB_SLOT_WAIT" env-default:"2s"`
}

// Load reads path (when non-empty) and applies environment overrides. An empty path
// reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	path = strings.TrimSpace(path)
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Pipeline.DefaultLanguage = strings.TrimSpace(c.Pipeline.DefaultLanguage)

	extra := c.Pipeline.ProtectedExtraKeywords[:0]
	for _, k := range c.Pipeline.ProtectedExtraKeywords {
		if k = strings.TrimSpace(k); k != "" {
			extra = append(extra, k)
		}
	}
	c.Pipeline.ProtectedExtraKeywords = extra
}

// Validate reports settings that would fail at first use.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderGemini:
		if strings.TrimSpace(c.Gemini.APIKey) == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for provider gemini"))
		}
		if strings.TrimSpace(c.Gemini.Model) == "" {
			errs = append(errs, errors.New("GEMINI_MODEL is required for provider gemini"))
		}
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAI.APIKey) == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for provider openai"))
		}
		if strings.TrimSpace(c.OpenAI.Model) == "" {
			errs = append(errs, errors.New("OPENAI_MODEL is required for provider openai"))
		}
	case ProviderAnthropic:
		if strings.TrimSpace(c.Anthropic.APIKey) == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for provider anthropic"))
		}
		if strings.TrimSpace(c.Anthropic.Model) == "" {
			errs = append(errs, errors.New("ANTHROPIC_MODEL is required for provider anthropic"))
		}
	case ProviderStub:
	default:
		errs = append(errs, fmt.Errorf("unknown PROVIDER %q (want gemini, openai, anthropic or stub)", c.Provider))
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q (want json or console)", c.LogFormat))
	}
	if c.Pipeline.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be > 0, got %s", c.Pipeline.RequestTimeout))
	}
	if c.Pipeline.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0, got %v", c.Pipeline.RateLimitRPS))
	}
	if c.Pipeline.PreviewRows <= 0 {
		errs = append(errs, fmt.Errorf("PREVIEW_ROWS must be > 0, got %d", c.Pipeline.PreviewRows))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be > 0, got %d", c.Server.MaxUploadBytes))
	}
	if c.Server.MaxConcurrentJobs <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_JOBS must be > 0, got %d", c.Server.MaxConcurrentJobs))
	}
	return errors.Join(errs...)
}

// WriteYAML writes the effective configuration. API keys are never written.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// Usage writes the environment variable reference.
func Usage(w io.Writer) {
	header := "Environment:"
	cleanenv.FUsage(w, &Config{}, &header)()
}
