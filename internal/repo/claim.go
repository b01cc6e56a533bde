// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the claim primitives every exactly-once
// path is built on: insert-if-absent with observation of the winner, a
// transaction-scoped key lock and guarded (conditional) updates.
package repo

import (
	"context"
	"errors"
	"hash/fnv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidKey is returned when a claim key is empty or malformed.
var ErrInvalidKey = errors.New("repo: invalid claim key")

// Key names the unique columns a claim is taken on, with the values being
// claimed. The columns must be covered by a unique index or primary key.
type Key struct {
	Columns []string
	Values  []any
}

// Claim is the result of ClaimOnce. Claimed is true only for the caller whose
// insert created the row; every other caller gets the row already present.
type Claim[T any] struct {
	Claimed bool
	Record  *T
}

// ClaimOnce inserts rec unless a row with the same key exists. When the
// insert is ignored the existing row is read back in the same transaction
// and returned with Claimed == false.
//
// tx should be a transaction. Conflicts on constraints other than key are
// returned as errors.
func ClaimOnce[T any](ctx context.Context, tx *gorm.DB, rec *T, key Key) (Claim[T], error) {
	if rec == nil || len(key.Columns) == 0 || len(key.Columns) != len(key.Values) {
		return Claim[T]{}, ErrInvalidKey
	}

	cols := make([]clause.Column, len(key.Columns))
	for i, c := range key.Columns {
		cols[i] = clause.Column{Name: c}
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return Claim[T]{}, res.Error
	}
	if res.RowsAffected > 0 {
		return Claim[T]{Claimed: true, Record: rec}, nil
	}

	existing := new(T)
	q := tx.WithContext(ctx)
	for i, c := range key.Columns {
		q = q.Where(clause.Eq{Column: clause.Column{Name: c}, Value: key.Values[i]})
	}
	if err := q.Take(existing).Error; err != nil {
		return Claim[T]{}, err
	}
	return Claim[T]{Record: existing}, nil
}

// AcquireKeyLock takes an exclusive lock on key that is released when tx
// ends. On PostgreSQL this is pg_advisory_xact_lock. SQLite is opened with a
// single connection, so its transactions are already serialized and the call
// does nothing.
func AcquireKeyLock(ctx context.Context, tx *gorm.DB, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if tx.Dialector == nil || tx.Dialector.Name() != DriverPostgres {
		return nil
	}
	return tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", LockID(key)).Error
}

// LockID maps a coordination key to the int64 lock space of advisory locks.
func LockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// ConditionalUpdate applies updates to the rows of model matching where and
// reports whether any row changed. A false result with a nil error means the
// guard no longer held (another writer got there first).
func ConditionalUpdate(ctx context.Context, tx *gorm.DB, model any, updates map[string]any, where string, args ...any) (bool, error) {
	res := tx.WithContext(ctx).Model(model).Where(where, args...).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
