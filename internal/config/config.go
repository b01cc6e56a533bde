// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the store, identity and run policies, rate limiting and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS" envDefault:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"assistant-core"`
	Environment string  `env:"DEPLOYMENT_ENVIRONMENT" envDefault:"development"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1.0"`
}

// DBConfig selects and locates the store.
type DBConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite|postgres
	Path   string `env:"DB_PATH" envDefault:"app.db"`   // sqlite file
	DSN    string `env:"DB_DSN"`                        // postgres connection string
}

// IdentityConfig holds identity registry settings.
type IdentityConfig struct {
	LinkCodeTTL time.Duration `env:"LINK_CODE_TTL" envDefault:"10m"`
	// LegacyPrefixes maps a provider to the prefix of its pre-migration ids,
	// e.g. "telegram:tg-legacy,discord:dc-legacy".
	LegacyPrefixes map[string]string `env:"LEGACY_PREFIXES" envDefault:"telegram:tg-legacy" envSeparator:"," envKeyValSeparator:":"`
}

// RunConfig holds run admission and retry settings.
type RunConfig struct {
	StaleAfter  time.Duration `env:"RUN_STALE_AFTER" envDefault:"30m"` // 0 disables reclaim
	RetryBase   time.Duration `env:"RETRY_BASE" envDefault:"2s"`
	RetryCap    time.Duration `env:"RETRY_CAP" envDefault:"30s"`
	RetryJitter float64       `env:"RETRY_JITTER" envDefault:"0.2"`
	RetryMax    int           `env:"RETRY_MAX" envDefault:"5"`
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"20s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES" envDefault:"1048576"`
	GinMode           string        `env:"GIN_MODE" envDefault:"release"` // debug|release|test

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"` // debug|info|warn|error|fatal|panic
	LogPretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" envDefault:"false"`
	APIBasePath    string `env:"API_BASE_PATH" envDefault:"/api/v1"`

	// Store
	DB DBConfig

	// Core policies
	Identity          IdentityConfig
	Runs              RunConfig
	RecentDedupWindow int `env:"RECENT_DEDUP_WINDOW" envDefault:"1"`

	// Rate limiting
	RateRPS   float64 `env:"RATE_RPS" envDefault:"5"`
	RateBurst int     `env:"RATE_BURST" envDefault:"10"`

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	// --- normalization ---
	cfg.GinMode = strings.ToLower(strings.TrimSpace(cfg.GinMode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.APIBasePath = normalizeBasePath(cfg.APIBasePath)
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.CORS.AllowedOrigins = cleanList(cfg.CORS.AllowedOrigins)
	cfg.Identity.LegacyPrefixes = cleanPrefixes(cfg.Identity.LegacyPrefixes)

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Identity.LinkCodeTTL <= 0 {
		return cfg, errors.New("LINK_CODE_TTL must be > 0")
	}
	if cfg.RecentDedupWindow < 1 {
		return cfg, errors.New("RECENT_DEDUP_WINDOW must be >= 1")
	}
	if cfg.Runs.StaleAfter < 0 {
		return cfg, errors.New("RUN_STALE_AFTER must be >= 0")
	}
	if cfg.Runs.RetryBase <= 0 || cfg.Runs.RetryCap < cfg.Runs.RetryBase {
		return cfg, errors.New("RETRY_BASE must be > 0 and RETRY_CAP >= RETRY_BASE")
	}
	if cfg.Runs.RetryJitter < 0 || cfg.Runs.RetryJitter > 1 {
		return cfg, errors.New("RETRY_JITTER must be in [0,1]")
	}
	if cfg.Runs.RetryMax < 0 {
		return cfg, errors.New("RETRY_MAX must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func cleanList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// cleanPrefixes lower-cases provider names and drops empty entries.
func cleanPrefixes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
