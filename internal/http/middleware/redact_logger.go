// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It binds the
// request-scoped logger and scrubs obvious PII from request metadata before
// emitting the access line.
//
//   - Never logs request or response bodies.
//   - Redacts emails, phone numbers and UUIDs in query strings and headers.
//   - Masks sensitive headers (Authorization, Cookie, Set-Cookie, plus custom).
//   - Masks provider user ids passed as query parameters.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]" (case-insensitive). MaskQuery lists extra query parameters
// treated the same way; "user_id" and "provider_user_id" are always masked.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
}

var (
	// UUIDs go first so the phone pattern cannot eat their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-7][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, h := range list {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				out[h] = struct{}{}
			}
		}
	}
	return out
}

// redactQuery masks listed parameters and pattern-redacts the rest. An
// unparsable query is pattern-redacted as a whole.
func redactQuery(raw string, masked map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redact(raw)
	}
	for k, vv := range vals {
		_, mask := masked[strings.ToLower(k)]
		for i := range vv {
			if mask {
				vv[i] = "[REDACTED]"
			} else {
				vv[i] = redact(vv[i])
			}
		}
	}
	// Encode escapes the brackets; the log line stays readable without it.
	out, _ := url.QueryUnescape(vals.Encode())
	return out
}

// RedactingLogger returns the access-log middleware. Place it after RequestID.
//
// The level is info for 2xx/3xx, warn for 4xx, error for 5xx or when handlers
// attached Gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskQuery := lowerSet([]string{"user_id", "provider_user_id"}, opts.MaskQuery)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		reqID := RequestIDFrom(c)
		if reqID == "" {
			reqID = c.Writer.Header().Get(requestIDHeader)
		}
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}
		safeQuery := truncate(redactQuery(c.Request.URL.RawQuery, maskQuery), maxQueryLogLength)

		bindLogger(c, log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger())

		c.Next()

		status := c.Writer.Status()
		lg := LoggerFrom(c)
		ev := lg.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}
		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
