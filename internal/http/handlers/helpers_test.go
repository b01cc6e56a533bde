package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/http/middleware"
	"github.com/tbourn/assistant-core/internal/repo"
	"github.com/tbourn/assistant-core/internal/retry"
	"github.com/tbourn/assistant-core/internal/services"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testAPI struct {
	r     *gin.Engine
	db    *gorm.DB
	clock *clock
}

// newTestAPI serves the handlers over real services on a fresh SQLite file.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	clk := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	ids := &services.IdentityService{DB: db, Now: clk.Now}
	msgs := &services.MessageService{DB: db, Now: clk.Now}
	runs := &services.RunService{
		DB:     db,
		Policy: retry.Policy{Base: time.Second, Cap: 10 * time.Second, MaxRetries: 3},
		Now:    clk.Now,
	}
	h := New(Services{
		Identities: ids,
		Migrations: &services.MigrationService{DB: db, Now: clk.Now},
		Inbound:    &services.InboundService{Identities: ids, Messages: msgs},
		Messages:   msgs,
		Runs:       runs,
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/events", h.PostEvent)
	r.GET("/identities/resolve", h.ResolveIdentity)
	r.GET("/identities/:id/providers", h.ListProviders)
	r.POST("/links", h.CreateLink)
	r.POST("/links/confirm", h.ConfirmLink)
	r.GET("/links/status", h.LinkStatus)
	r.DELETE("/links/:code", h.RevokeLink)
	r.GET("/migrations/:id/plan", h.PlanMigration)
	r.POST("/migrations/:id", h.ExecuteMigration)
	r.POST("/runs/start", h.StartRun)
	r.POST("/runs/finish", h.FinishRun)
	r.GET("/runs", h.ListRuns)
	r.GET("/messages", h.ListMessages)
	r.GET("/messages/:id", h.GetMessage)

	return &testAPI{r: r, db: db, clock: clk}
}

// do sends body (marshalled when not nil) and returns the recorder.
func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(context.Background())
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code, msg string) {
	t.Helper()
	wantStatus(t, w, status)
	er := decode[ErrorResponse](t, w)
	if er.Code != code || (msg != "" && er.Message != msg) {
		t.Fatalf("error=%+v want code=%q message=%q", er, code, msg)
	}
	if er.RequestID == "" {
		t.Fatalf("error envelope without request id: %+v", er)
	}
}
