// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, compression,
// metrics, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/assistant-core/docs"
	"github.com/tbourn/assistant-core/internal/config"
	"github.com/tbourn/assistant-core/internal/http/handlers"
	"github.com/tbourn/assistant-core/internal/http/middleware"
	"github.com/tbourn/assistant-core/internal/repo"
	"github.com/tbourn/assistant-core/internal/retry"
	"github.com/tbourn/assistant-core/internal/services"
)

// Services holds the application services built from configuration.
type Services struct {
	Identities *services.IdentityService
	Migrations *services.MigrationService
	Messages   *services.MessageService
	Runs       *services.RunService
	Inbound    *services.InboundService
	Jobs       *services.JobService
}

// NewServices builds every service on db with the policies in cfg.
func NewServices(db *gorm.DB, cfg config.Config) *Services {
	legacy := services.LegacyScheme(cfg.Identity.LegacyPrefixes)
	if len(legacy) == 0 {
		legacy = services.DefaultLegacyScheme()
	}
	ids := &services.IdentityService{
		DB:      db,
		Legacy:  legacy,
		CodeTTL: cfg.Identity.LinkCodeTTL,
	}
	msgs := &services.MessageService{DB: db, RecentWindow: cfg.RecentDedupWindow}
	runs := &services.RunService{
		DB: db,
		Policy: retry.Policy{
			Base:        cfg.Runs.RetryBase,
			Cap:         cfg.Runs.RetryCap,
			JitterRatio: cfg.Runs.RetryJitter,
			MaxRetries:  cfg.Runs.RetryMax,
		},
		StaleAfter: cfg.Runs.StaleAfter,
	}
	return &Services{
		Identities: ids,
		Migrations: &services.MigrationService{DB: db, Legacy: legacy},
		Messages:   msgs,
		Runs:       runs,
		Inbound:    &services.InboundService{Identities: ids, Messages: msgs},
		Jobs:       &services.JobService{Runs: runs},
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per provider identity/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	svcs := NewServices(db, cfg)

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", middleware.HeaderProviderUserID},
		MaskQuery:   []string{"code"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression; Prometheus negotiates its own
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.NewHTTPMetrics(nil).Handler())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation: on event ingestion, a key the caller's own
	// scope already stored as an external message id marks a replay
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{ReplayPaths: []string{apiPath(cfg.APIBasePath, "/events")}},
		replayLookup(db, svcs.Identities),
	))

	// 9) Token-bucket rate limiter per provider identity/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIdentityOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderProvider, middleware.HeaderProviderUserID, middleware.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", handlers.HeaderReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Services{
		Identities: svcs.Identities,
		Migrations: svcs.Migrations,
		Inbound:    svcs.Inbound,
		Messages:   svcs.Messages,
		Runs:       svcs.Runs,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/events", h.PostEvent)
		api.GET("/messages", h.ListMessages)
		api.GET("/messages/:id", h.GetMessage)

		api.GET("/identities/resolve", h.ResolveIdentity)
		api.GET("/identities/:id/providers", h.ListProviders)

		// Link codes are bearer secrets while pending.
		links := api.Group("/links", middleware.NoStore())
		links.POST("", h.CreateLink)
		links.POST("/confirm", h.ConfirmLink)
		links.GET("/status", h.LinkStatus)
		links.DELETE("/:code", h.RevokeLink)

		api.GET("/migrations/:id/plan", h.PlanMigration)
		api.POST("/migrations/:id", h.ExecuteMigration)

		api.POST("/runs/start", h.StartRun)
		api.POST("/runs/finish", h.FinishRun)
		api.GET("/runs", h.ListRuns)
	}
}

// replayLookup checks a key against the scope of the caller's canonical
// identity. Unknown callers never replay.
func replayLookup(db *gorm.DB, ids *services.IdentityService) middleware.IdempotencyLookup {
	return func(ctx context.Context, caller middleware.Caller, key string) (bool, error) {
		res, err := ids.Resolve(ctx, caller.Provider, caller.ProviderUserID)
		if err != nil || !res.Found() {
			return false, err
		}
		return repo.ExternalMessageIDInScope(ctx, db, services.ScopeKeyForIdentity(res.CanonicalID), key)
	}
}

// apiPath is the route pattern of p mounted under base.
func apiPath(base, p string) string {
	return strings.TrimSuffix(base, "/") + p
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
