package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/repo"
	"github.com/tbourn/assistant-core/internal/retry"
)

// inTx runs fn in one transaction and retries the whole transaction while the
// store reports a transient conflict. fn must only use tx, and must reset any
// captured results since it may run more than once.
func inTx(ctx context.Context, db *gorm.DB, op string, fn func(tx *gorm.DB) error) error {
	err := retry.Transient(ctx, 0, repo.IsConflict, func() error {
		return db.WithContext(ctx).Transaction(fn)
	})
	return storeErr(op, err)
}
