package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// devSigningKey is only accepted outside production.
const devSigningKey = "development-session-signing-key-change-me"

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	Debug             bool          `mapstructure:"DEBUG"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	SessionSigningKey string        `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	GeminiAPIKey      string        `mapstructure:"GEMINI_API_KEY"`
	GeminiBaseURL     string        `mapstructure:"GEMINI_BASE_URL"`
	TextgenTimeout    time.Duration `mapstructure:"TEXTGEN_TIMEOUT"`
	PhoneRegion       string        `mapstructure:"PHONE_REGION"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	LogFile           string        `mapstructure:"LOG_FILE"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
}

var envKeys = []string{
	"PORT", "ENV", "DEBUG", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "SESSION_SIGNING_KEY", "SESSION_TTL", "GEMINI_API_KEY",
	"GEMINI_BASE_URL", "TEXTGEN_TIMEOUT", "PHONE_REGION", "LOG_LEVEL",
	"LOG_FILE", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DEBUG", false)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("TEXTGEN_TIMEOUT", "10s")
	v.SetDefault("PHONE_REGION", "US")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	// Unmarshal only sees keys viper knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.PhoneRegion = strings.ToUpper(cfg.PhoneRegion)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SessionSigningKey == "" && !cfg.IsProduction() {
		cfg.SessionSigningKey = devSigningKey
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.SessionSigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY is required")
	}
	if c.IsProduction() {
		if c.SessionSigningKey == devSigningKey {
			return fmt.Errorf("SESSION_SIGNING_KEY must be changed from the development default in production")
		}
		if len(c.SessionSigningKey) < 32 {
			return fmt.Errorf("SESSION_SIGNING_KEY must be at least 32 bytes in production, got %d", len(c.SessionSigningKey))
		}
		if c.Debug {
			return fmt.Errorf("DEBUG must not be enabled in production")
		}
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.TextgenTimeout <= 0 {
		return fmt.Errorf("TEXTGEN_TIMEOUT must be positive, got %s", c.TextgenTimeout)
	}
	if len(c.PhoneRegion) != 2 {
		return fmt.Errorf("PHONE_REGION must be a two-letter region code, got %q", c.PhoneRegion)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
