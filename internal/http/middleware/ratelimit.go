// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with one bucket
// per caller identity. Transport adapters identify the end-user they act for
// with the X-Provider and X-Provider-User-ID headers; callers that send
// neither are limited per client IP.
//
// The limiter is process-local: with several replicas each enforces its own
// budget. Replayed deliveries (see IdempotencyValidator) are not limited.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Identity headers set by transport adapters.
const (
	HeaderProvider       = "X-Provider"
	HeaderProviderUserID = "X-Provider-User-ID"
)

// keyFunc selects the bucket of a request.
type keyFunc func(*gin.Context) string

// KeyByIdentityOrIP keys buckets by "id:<provider>:<user>" when both identity
// headers are present and by "ip:<addr>" otherwise.
func KeyByIdentityOrIP() keyFunc {
	return func(c *gin.Context) string {
		if cl, ok := CallerFrom(c); ok {
			return "id:" + cl.Provider + ":" + cl.ProviderUserID
		}
		return "ip:" + c.ClientIP()
	}
}

// visitor holds a single rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-key token-bucket rate limiter. Idle buckets
// are evicted after ttl during lookups. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size (values <= 0 are coerced to 1), keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the limiter for key, creating it if absent. Every 5000
// lookups idle entries are evicted first, so a stale bucket can be dropped
// even when it is the one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that skips limiting.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// retryAfter renders the wait until a token is available in whole seconds,
// at least 1. An unsatisfiable reservation reports 60.
func retryAfter(r *rate.Reservation) string {
	if !r.OK() {
		return "60"
	}
	d := r.Delay()
	if d > time.Hour {
		return "60"
	}
	return strconv.Itoa(int(math.Max(1, math.Ceil(d.Seconds()))))
}

// Handler returns the limiting middleware. A denied request gets 429 with the
// standard error envelope and a Retry-After header.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		r := rl.getVisitor(rl.keyFn(c)).Reserve()
		if r.OK() && r.Delay() == 0 {
			c.Next()
			return
		}
		wait := retryAfter(r)
		r.Cancel()

		c.Header("Retry-After", wait)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
