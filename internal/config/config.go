package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT" validate:"required,numeric"`
	Env  string `mapstructure:"ENV" validate:"oneof=development test production"`

	// ServerURL is the public FHIR base used for Bundle fullUrl and links.
	// Empty means it is derived from each request.
	ServerURL string `mapstructure:"SERVER_URL" validate:"omitempty,url"`

	CorpusPath    string `mapstructure:"CORPUS_PATH"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS" validate:"gte=1"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS" validate:"gte=0,ltefield=DBMaxConns"`
	ResourceTable string `mapstructure:"RESOURCE_TABLE" validate:"required"`

	TerminologyURL     string        `mapstructure:"TERMINOLOGY_URL" validate:"omitempty,url"`
	TerminologyTimeout time.Duration `mapstructure:"TERMINOLOGY_TIMEOUT" validate:"gt=0"`

	SearchDefaultCount    int  `mapstructure:"SEARCH_DEFAULT_COUNT" validate:"gte=1,ltefield=SearchMaxCount"`
	SearchMaxCount        int  `mapstructure:"SEARCH_MAX_COUNT" validate:"gte=1"`
	SearchParallelism     int  `mapstructure:"SEARCH_PARALLELISM" validate:"gte=1,lte=256"`
	ReverseChainScanLimit int  `mapstructure:"REVERSE_CHAIN_SCAN_LIMIT" validate:"gte=0"`
	StrictCapabilities    bool `mapstructure:"STRICT_CAPABILITIES"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT" validate:"gte=0"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	// RateLimitRPS of zero disables per-client rate limiting.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST" validate:"gte=1"`

	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE" validate:"gte=0,lte=1"`
}

var keys = []string{
	"PORT", "ENV", "SERVER_URL",
	"CORPUS_PATH", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "RESOURCE_TABLE",
	"TERMINOLOGY_URL", "TERMINOLOGY_TIMEOUT",
	"SEARCH_DEFAULT_COUNT", "SEARCH_MAX_COUNT", "SEARCH_PARALLELISM",
	"REVERSE_CHAIN_SCAN_LIMIT", "STRICT_CAPABILITIES",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
}

// Load reads the environment and an optional .env file, then validates
// the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("RESOURCE_TABLE", "fhir_resources")
	v.SetDefault("TERMINOLOGY_TIMEOUT", "5s")
	v.SetDefault("SEARCH_DEFAULT_COUNT", 20)
	v.SetDefault("SEARCH_MAX_COUNT", 1000)
	v.SetDefault("SEARCH_PARALLELISM", 4)
	v.SetDefault("REVERSE_CHAIN_SCAN_LIMIT", 100000)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 0)
	v.SetDefault("RATE_LIMIT_BURST", 50)
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks field constraints and that a corpus source is configured.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.CorpusPath == "" && c.DatabaseURL == "" {
		return fmt.Errorf("one of CORPUS_PATH or DATABASE_URL is required")
	}
	return nil
}

// CorpusPaths splits CORPUS_PATH on commas.
func (c *Config) CorpusPaths() []string {
	var out []string
	for _, p := range strings.Split(c.CorpusPath, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
