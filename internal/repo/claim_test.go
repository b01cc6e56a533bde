package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
)

// newFileDB opens a file-backed store the way production does (single
// connection), for tests that run transactions concurrently.
func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "claims.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func newMessage(id, ext string) *domain.MessageRecord {
	return &domain.MessageRecord{
		ID:                id,
		ScopeKey:          "id:cid_1",
		Role:              domain.RoleUser,
		ExternalMessageID: &ext,
		Content:           "hello",
		ContentHash:       strings.Repeat("a", 64),
		CreatedAt:         time.Now().UTC(),
	}
}

func messageKey(ext string) Key {
	return Key{
		Columns: []string{"scope_key", "role", "external_message_id"},
		Values:  []any{"id:cid_1", domain.RoleUser, ext},
	}
}

func TestClaimOnce_FirstClaimsSecondObserves(t *testing.T) {
	db := newTestDB(t, &domain.MessageRecord{})
	ctx := context.Background()

	first, err := ClaimOnce(ctx, db, newMessage("m1", "ext-1"), messageKey("ext-1"))
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !first.Claimed || first.Record.ID != "m1" {
		t.Fatalf("first claim = %+v", first)
	}

	second, err := ClaimOnce(ctx, db, newMessage("m2", "ext-1"), messageKey("ext-1"))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Claimed {
		t.Fatalf("second claim must observe, got claimed")
	}
	if second.Record == nil || second.Record.ID != "m1" {
		t.Fatalf("expected existing record m1, got %+v", second.Record)
	}

	other, err := ClaimOnce(ctx, db, newMessage("m3", "ext-2"), messageKey("ext-2"))
	if err != nil || !other.Claimed {
		t.Fatalf("different key should claim: %+v err=%v", other, err)
	}
}

func TestClaimOnce_InvalidKey(t *testing.T) {
	db := newTestDB(t, &domain.MessageRecord{})
	ctx := context.Background()

	if _, err := ClaimOnce(ctx, db, newMessage("m1", "x"), Key{}); err != ErrInvalidKey {
		t.Fatalf("want ErrInvalidKey, got %v", err)
	}
	bad := Key{Columns: []string{"scope_key"}, Values: []any{"a", "b"}}
	if _, err := ClaimOnce(ctx, db, newMessage("m1", "x"), bad); err != ErrInvalidKey {
		t.Fatalf("want ErrInvalidKey, got %v", err)
	}
	if _, err := ClaimOnce[domain.MessageRecord](ctx, db, nil, messageKey("x")); err != ErrInvalidKey {
		t.Fatalf("want ErrInvalidKey for nil record, got %v", err)
	}
}

func TestClaimOnce_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := ClaimOnce(context.Background(), db, newMessage("m1", "x"), messageKey("x")); err == nil {
		t.Fatalf("expected error without messages table")
	}
}

func TestClaimOnce_ConcurrentSingleWinner(t *testing.T) {
	db := newFileDB(t)
	ctx := context.Background()

	const n = 16
	var (
		wg      sync.WaitGroup
		claimed atomic.Int32
		errs    = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := AcquireKeyLock(ctx, tx, "msg:ext-1"); err != nil {
					return err
				}
				c, err := ClaimOnce(ctx, tx, newMessage(fmt.Sprintf("m%d", i), "ext-1"), messageKey("ext-1"))
				if err != nil {
					return err
				}
				if c.Claimed {
					claimed.Add(1)
				}
				return nil
			})
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("claim tx: %v", err)
	}

	if got := claimed.Load(); got != 1 {
		t.Fatalf("claimed = %d, want 1", got)
	}
	var count int64
	db.Model(&domain.MessageRecord{}).Count(&count)
	if count != 1 {
		t.Fatalf("stored = %d, want 1", count)
	}
}

func TestAcquireKeyLock_SQLiteNoopAndEmptyKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := AcquireKeyLock(ctx, db, "k"); err != nil {
		t.Fatalf("sqlite lock should be a no-op, got %v", err)
	}
	if err := AcquireKeyLock(ctx, db, ""); err != ErrInvalidKey {
		t.Fatalf("want ErrInvalidKey, got %v", err)
	}
}

func TestAcquireKeyLock_PostgresIssuesAdvisoryLock(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=127.0.0.1 user=u dbname=d sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run postgres: %v", err)
	}
	var sql string
	var vars []any
	if err := db.Callback().Raw().After("gorm:raw").Register("test:capture", func(d *gorm.DB) {
		sql, vars = d.Statement.SQL.String(), d.Statement.Vars
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if err := AcquireKeyLock(context.Background(), db, "msg:id:cid_1:user:m-1"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if sql != "SELECT pg_advisory_xact_lock($1)" {
		t.Fatalf("sql = %q", sql)
	}
	if len(vars) != 1 || vars[0] != LockID("msg:id:cid_1:user:m-1") {
		t.Fatalf("vars = %v", vars)
	}
}

func TestLockID_Deterministic(t *testing.T) {
	if LockID("a") != LockID("a") {
		t.Fatalf("LockID must be deterministic")
	}
	if LockID("a") == LockID("b") {
		t.Fatalf("distinct keys should not collide here")
	}
}

func TestConditionalUpdate_GuardHoldsOnce(t *testing.T) {
	db := newTestDB(t, &domain.LinkCode{})
	ctx := context.Background()

	lc := &domain.LinkCode{
		Code: "AB12CD", CanonicalID: "cid_1", Provider: "telegram", ProviderUserID: "111",
		Status: domain.LinkPending, ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := db.Create(lc).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	upd := map[string]any{"status": domain.LinkConsumed}
	ok, err := ConditionalUpdate(ctx, db, &domain.LinkCode{}, upd, "code = ? AND status = ?", "AB12CD", domain.LinkPending)
	if err != nil || !ok {
		t.Fatalf("first update: ok=%v err=%v", ok, err)
	}
	ok, err = ConditionalUpdate(ctx, db, &domain.LinkCode{}, upd, "code = ? AND status = ?", "AB12CD", domain.LinkPending)
	if err != nil || ok {
		t.Fatalf("second update must not apply: ok=%v err=%v", ok, err)
	}

	got, _ := GetLinkCode(db, "AB12CD")
	if got.Status != domain.LinkConsumed {
		t.Fatalf("status = %q", got.Status)
	}
}
