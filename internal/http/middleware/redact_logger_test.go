package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestRedactingLogger_AccessLine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-resp")
		c.Next()
	})
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{HeaderProviderUserID}}))
	r.DELETE("/links/:code", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodDelete,
		"/links/K7QX2M?contact=ops@example.com&ref=123e4567-e89b-12d3-a456-426614174000", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set(HeaderProviderUserID, "987654321")
	req.Header.Set("X-Note", "from a@b.com re 123e4567-e89b-12d3-a456-426614174000")
	req.Header.Set("X-Request-ID", "rid-req")
	r.ServeHTTP(httptest.NewRecorder(), req)

	logs := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"path":"/links/:code"`,
		`"request_id":"rid-resp"`,
		`"status":204`,
		`contact=[REDACTED:email]`,
		`ref=[REDACTED:id]`,
		`"Authorization":"[REDACTED]"`,
		`"Cookie":"[REDACTED]"`,
		`"X-Provider-User-Id":"[REDACTED]"`,
		`"X-Note":"from [REDACTED:email] re [REDACTED:id]"`,
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("missing %s in %s", want, logs)
		}
	}
	for _, leak := range []string{"secret", "topsecret", "987654321", "ops@example.com"} {
		if strings.Contains(logs, leak) {
			t.Errorf("leaked %q: %s", leak, logs)
		}
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		handler gin.HandlerFunc
		level   string
		extra   string
	}{
		{"created", func(c *gin.Context) { c.Status(http.StatusCreated) }, "info", ""},
		{"gone", func(c *gin.Context) { c.Status(http.StatusGone) }, "warn", ""},
		{"unavailable", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) }, "error", ""},
		{"attached error", func(c *gin.Context) {
			_ = c.Error(errors.New("store busy"))
			c.Status(http.StatusOK)
		}, "error", "store busy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := withCapturedLogger(t)
			r := gin.New()
			r.Use(RedactingLogger(RedactOptions{}))
			r.POST("/runs/start", tc.handler)

			req := httptest.NewRequest(http.MethodPost, "/runs/start", nil)
			req.Header.Set("X-Request-ID", "rid-"+tc.level)
			r.ServeHTTP(httptest.NewRecorder(), req)

			logs := buf.String()
			if !strings.Contains(logs, `"level":"`+tc.level+`"`) {
				t.Fatalf("want level %s: %s", tc.level, logs)
			}
			if !strings.Contains(logs, `"request_id":"rid-`+tc.level+`"`) {
				t.Fatalf("request header id not used: %s", logs)
			}
			if tc.extra != "" && !strings.Contains(logs, tc.extra) {
				t.Fatalf("missing %q: %s", tc.extra, logs)
			}
		})
	}
}

func TestRedactingLogger_MasksProviderUserIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{MaskQuery: []string{"chat_id"}}))
	r.GET("/identities/resolve", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/identities/resolve?provider=telegram&user_id=987654&chat_id=42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	logs := buf.String()
	if strings.Contains(logs, "987654") || strings.Contains(logs, "chat_id=42") {
		t.Fatalf("provider ids leaked: %s", logs)
	}
	if !strings.Contains(logs, "provider=telegram") || !strings.Contains(logs, "user_id=[REDACTED]") {
		t.Fatalf("unexpected query rendering: %s", logs)
	}
}

func TestRedactingLogger_BindsRequestContextLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/svc", func(c *gin.Context) {
		// what a service sees below the handler
		zerolog.Ctx(c.Request.Context()).Info().Msg("from service")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/svc", nil)
	req.Header.Set("X-Request-ID", "rid-ctx")
	r.ServeHTTP(httptest.NewRecorder(), req)

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, `"from service"`) {
			if !strings.Contains(line, `"request_id":"rid-ctx"`) || !strings.Contains(line, `"path":"/svc"`) {
				t.Fatalf("service log missing request fields: %s", line)
			}
			return
		}
	}
	t.Fatalf("service log line not found: %s", buf.String())
}
