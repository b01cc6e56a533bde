// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
)

// MessagesStats returns the number of messages stored in a scope and the
// CreatedAt of the newest one. When the scope is empty, count is 0 and
// latest is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, scopeKey string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.MessageRecord{}).Where("scope_key = ?", scopeKey)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// RunsStats is MessagesStats for the runs of a subject, keyed on UpdatedAt.
func RunsStats(ctx context.Context, db *gorm.DB, subjectID string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.RunRecord{}).Where("subject_id = ?", subjectID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
