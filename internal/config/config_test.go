package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("server defaults unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "app.db" {
		t.Fatalf("db defaults unexpected: %+v", cfg.DB)
	}
	if cfg.Identity.LinkCodeTTL != 10*time.Minute {
		t.Fatalf("link ttl = %v", cfg.Identity.LinkCodeTTL)
	}
	if !reflect.DeepEqual(cfg.Identity.LegacyPrefixes, map[string]string{"telegram": "tg-legacy"}) {
		t.Fatalf("legacy prefixes = %#v", cfg.Identity.LegacyPrefixes)
	}
	if cfg.RecentDedupWindow != 1 {
		t.Fatalf("dedup window = %d", cfg.RecentDedupWindow)
	}
	r := cfg.Runs
	if r.StaleAfter != 30*time.Minute || r.RetryBase != 2*time.Second || r.RetryCap != 30*time.Second || r.RetryJitter != 0.2 || r.RetryMax != 5 {
		t.Fatalf("run defaults unexpected: %+v", r)
	}
	if cfg.CORS.AllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	t.Setenv("LOG_LEVEL", "WARNING") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("SWAGGER_ENABLED", "1")
	t.Setenv("API_BASE_PATH", "api/v2/")

	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_DSN", "postgres://u:p@localhost:5432/app")

	t.Setenv("LINK_CODE_TTL", "5m")
	t.Setenv("LEGACY_PREFIXES", "Telegram:tg-legacy, discord:dc-legacy")
	t.Setenv("RECENT_DEDUP_WINDOW", "3")
	t.Setenv("RUN_STALE_AFTER", "0s")
	t.Setenv("RETRY_BASE", "1s")
	t.Setenv("RETRY_CAP", "1m")
	t.Setenv("RETRY_JITTER", "0.5")
	t.Setenv("RETRY_MAX", "2")

	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("RATE_BURST", "4")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("DEPLOYMENT_ENVIRONMENT", "staging")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.DSN == "" {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}
	wantPrefixes := map[string]string{"telegram": "tg-legacy", "discord": "dc-legacy"}
	if cfg.Identity.LinkCodeTTL != 5*time.Minute || !reflect.DeepEqual(cfg.Identity.LegacyPrefixes, wantPrefixes) {
		t.Fatalf("identity unexpected: %+v", cfg.Identity)
	}
	if cfg.RecentDedupWindow != 3 {
		t.Fatalf("dedup window = %d", cfg.RecentDedupWindow)
	}
	if cfg.Runs.StaleAfter != 0 || cfg.Runs.RetryBase != time.Second || cfg.Runs.RetryCap != time.Minute || cfg.Runs.RetryJitter != 0.5 || cfg.Runs.RetryMax != 2 {
		t.Fatalf("runs unexpected: %+v", cfg.Runs)
	}
	if cfg.RateRPS != 2.5 || cfg.RateBurst != 4 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.Environment != "staging" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("RATE_BURST", "nope")
	if _, err := Load(); err == nil || !containsErr(err, "parse env") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres without dsn", map[string]string{"DB_DRIVER": "postgres"}, "DB_DSN"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"link ttl", map[string]string{"LINK_CODE_TTL": "-1m"}, "LINK_CODE_TTL"},
		{"dedup window", map[string]string{"RECENT_DEDUP_WINDOW": "0"}, "RECENT_DEDUP_WINDOW"},
		{"stale after", map[string]string{"RUN_STALE_AFTER": "-1s"}, "RUN_STALE_AFTER"},
		{"retry cap below base", map[string]string{"RETRY_BASE": "10s", "RETRY_CAP": "1s"}, "RETRY_CAP"},
		{"retry jitter", map[string]string{"RETRY_JITTER": "1.5"}, "RETRY_JITTER"},
		{"retry max", map[string]string{"RETRY_MAX": "-1"}, "RETRY_MAX"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestHelpers_cleanList_and_normalizeBasePath(t *testing.T) {
	if out := cleanList(nil); out != nil {
		t.Fatalf("cleanList nil should return nil")
	}
	if out := cleanList([]string{" ", ""}); out != nil {
		t.Fatalf("cleanList blanks should return nil, got %#v", out)
	}
	want := []string{"a", "b", "c"}
	if got := cleanList([]string{" a", " ", "b ", "  c  "}); !reflect.DeepEqual(got, want) {
		t.Fatalf("cleanList mismatch: got %#v want %#v", got, want)
	}

	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

func TestHelpers_cleanPrefixes(t *testing.T) {
	got := cleanPrefixes(map[string]string{" Telegram ": " tg-legacy ", "": "x", "discord": " "})
	if !reflect.DeepEqual(got, map[string]string{"telegram": "tg-legacy"}) {
		t.Fatalf("cleanPrefixes = %#v", got)
	}
}

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Unsetenv("DB_DRIVER")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
