package services

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/repo"
)

// newSvcDB opens a file-backed store configured like production (single
// connection, full schema) so concurrent tests exercise real transactions.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
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
	return db
}

// seqIDs hands out ids in order, repeating the last one.
type seqIDs struct {
	mu  sync.Mutex
	ids []string
	i   int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.ids[s.i]
	if s.i < len(s.ids)-1 {
		s.i++
	}
	return id, nil
}

// withLinkCodes makes newLinkCode return codes in order, repeating the last.
func withLinkCodes(t *testing.T, codes ...string) {
	t.Helper()
	orig := newLinkCode
	var (
		mu sync.Mutex
		i  int
	)
	newLinkCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
	t.Cleanup(func() { newLinkCode = orig })
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seedIdentity(t *testing.T, db *gorm.DB, id, scheme string) {
	t.Helper()
	if _, err := repo.CreateIdentity(db, id, scheme); err != nil {
		t.Fatalf("seed identity %s: %v", id, err)
	}
}

func count(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}
