// Package config loads the eligibility engine's runtime configuration from
// the environment.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-tunable knob the engine recognizes
// plus the ambient knobs the engine always carries (cache backend, logging).
type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	MaxCriteriaDepth int `mapstructure:"MAX_CRITERIA_DEPTH"`
	CacheTTLDays     int `mapstructure:"CACHE_TTL_DAYS"`

	LLMModelID     string  `mapstructure:"LLM_MODEL_ID"`
	LLMTemperature float64 `mapstructure:"LLM_TEMPERATURE"`
	LLMTimeoutS    int     `mapstructure:"LLM_TIMEOUT_S"`
	LLMAPIKey      string  `mapstructure:"LLM_API_KEY"`
	LLMMaxRetries  int     `mapstructure:"LLM_MAX_RETRIES"`

	FHIREndpoint      string `mapstructure:"FHIR_ENDPOINT"`
	FHIRTimeoutS      int    `mapstructure:"FHIR_TIMEOUT_S"`
	FHIRMaxRetries    int    `mapstructure:"FHIR_MAX_RETRIES"`
	FHIRAuthMode      string `mapstructure:"FHIR_AUTH_MODE"`
	FHIRSigningKey    string `mapstructure:"FHIR_SIGNING_KEY"`
	FHIRClientID      string `mapstructure:"FHIR_CLIENT_ID"`
	FHIRBearerToken   string `mapstructure:"FHIR_BEARER_TOKEN"`
	FHIRMaxConcurrent int    `mapstructure:"FHIR_MAX_CONCURRENCY"`

	CacheBackend string `mapstructure:"CACHE_BACKEND"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32  `mapstructure:"DB_MIN_CONNS"`
}

// Load reads `.env` (if present) and the real environment into a Config,
// applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_CRITERIA_DEPTH", 10)
	v.SetDefault("CACHE_TTL_DAYS", 7)
	v.SetDefault("LLM_TEMPERATURE", 0.1)
	v.SetDefault("LLM_TIMEOUT_S", 60)
	v.SetDefault("LLM_MAX_RETRIES", 2)
	v.SetDefault("FHIR_TIMEOUT_S", 10)
	v.SetDefault("FHIR_MAX_RETRIES", 3)
	v.SetDefault("FHIR_AUTH_MODE", "none")
	v.SetDefault("FHIR_MAX_CONCURRENCY", 4)
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)

	for _, key := range []string{
		"ENV", "LOG_LEVEL", "MAX_CRITERIA_DEPTH", "CACHE_TTL_DAYS",
		"LLM_MODEL_ID", "LLM_TEMPERATURE", "LLM_TIMEOUT_S", "LLM_API_KEY", "LLM_MAX_RETRIES",
		"FHIR_ENDPOINT", "FHIR_TIMEOUT_S", "FHIR_MAX_RETRIES", "FHIR_AUTH_MODE", "FHIR_SIGNING_KEY",
		"FHIR_CLIENT_ID", "FHIR_BEARER_TOKEN",
		"FHIR_MAX_CONCURRENCY", "CACHE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CacheBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when CACHE_BACKEND=postgres")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ================================================================")
		log.Println("WARNING: Engine is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: FHIR_AUTH_MODE defaults to \"none\"; requests to the datastore")
		log.Println("WARNING: are unsigned. Do NOT use this configuration in production.")
		log.Println("WARNING: ================================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LLMTimeout returns LLMTimeoutS as a time.Duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutS) * time.Second
}

// FHIRTimeout returns FHIRTimeoutS as a time.Duration.
func (c *Config) FHIRTimeout() time.Duration {
	return time.Duration(c.FHIRTimeoutS) * time.Second
}

// CacheTTL returns CacheTTLDays as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// Validate checks that the configuration is safe to run. In production the
// FHIR datastore must be authenticated and an LLM API key must be present:
// the engine refuses to silently run with unauthenticated queries or a dead
// Compiler.
func (c *Config) Validate() error {
	if c.FHIREndpoint == "" {
		return fmt.Errorf("FHIR_ENDPOINT is required")
	}
	if c.FHIRAuthMode != "none" && c.FHIRAuthMode != "bearer" && c.FHIRAuthMode != "signed" {
		return fmt.Errorf("FHIR_AUTH_MODE must be \"none\", \"bearer\", or \"signed\", got %q", c.FHIRAuthMode)
	}
	if c.FHIRAuthMode == "signed" && c.FHIRSigningKey == "" {
		return fmt.Errorf("FHIR_SIGNING_KEY is required when FHIR_AUTH_MODE is \"signed\"")
	}
	if c.FHIRAuthMode == "bearer" && c.FHIRBearerToken == "" {
		return fmt.Errorf("FHIR_BEARER_TOKEN is required when FHIR_AUTH_MODE is \"bearer\"")
	}
	if c.IsProduction() {
		if c.FHIRAuthMode == "none" {
			return fmt.Errorf("FHIR_AUTH_MODE must not be \"none\" in production. " +
				"Refusing to start without datastore authentication configured")
		}
		if c.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required in production")
		}
	}
	if c.MaxCriteriaDepth <= 0 {
		return fmt.Errorf("MAX_CRITERIA_DEPTH must be positive, got %d", c.MaxCriteriaDepth)
	}
	if c.CacheBackend != "memory" && c.CacheBackend != "postgres" {
		return fmt.Errorf("CACHE_BACKEND must be \"memory\" or \"postgres\", got %q", c.CacheBackend)
	}
	return nil
}
