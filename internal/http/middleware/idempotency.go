// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key request header and stashes it in
// the Gin context. Ingestion handlers use the key as the external message id
// when the event body carries none, so a transport that only knows its own
// delivery id still gets keyed deduplication.
//
// On the routes listed in IdempotencyOptions.ReplayPaths, a request that
// names its caller through the identity headers is checked with the lookup.
// When the key was already stored for that caller, the request is marked as
// a replay and bypasses the rate limiter: answering a redelivery costs one
// indexed read. Every other route is always limited.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: key already stored
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found the key already stored.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 190, the width of
	// the external message id column.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// ReplayPaths lists the route patterns (as in gin's FullPath) whose POST
	// requests may be recognized as replays. Empty means none.
	ReplayPaths []string
}

// Caller is the end-user a transport adapter acts for, taken from the
// X-Provider and X-Provider-User-ID headers.
type Caller struct {
	Provider       string
	ProviderUserID string
}

// CallerFrom reads the identity headers. ok is false unless both are set.
func CallerFrom(c *gin.Context) (Caller, bool) {
	cl := Caller{
		Provider:       strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderProvider))),
		ProviderUserID: strings.TrimSpace(c.GetHeader(HeaderProviderUserID)),
	}
	return cl, cl.Provider != "" && cl.ProviderUserID != ""
}

// IdempotencyLookup reports whether key was already stored for caller.
// Errors are treated as "not stored".
type IdempotencyLookup func(ctx context.Context, caller Caller, key string) (bool, error)

// IdempotencyValidator validates and stashes the Idempotency-Key header.
// Requests without the header pass through untouched; a malformed key is
// rejected with 400. lookup runs only for POST requests to ReplayPaths that
// carry both identity headers.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 190
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	replayPaths := make(map[string]struct{}, len(opts.ReplayPaths))
	for _, p := range opts.ReplayPaths {
		replayPaths[p] = struct{}{}
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if _, ok := replayPaths[c.FullPath()]; !ok {
			c.Next()
			return
		}
		caller, ok := CallerFrom(c)
		if !ok {
			c.Next()
			return
		}
		if seen, err := lookup(c.Request.Context(), caller, key); err == nil && seen {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
