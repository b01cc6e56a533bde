// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for stored messages.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
)

// LatestMessages returns up to n most recent messages of a scope, newest first.
func LatestMessages(db *gorm.DB, scopeKey string, n int) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	if n <= 0 {
		return out, nil
	}
	err := db.Where("scope_key = ?", scopeKey).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, scopeKey string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE scope_key = ?", scopeKey).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, scopeKey string, offset, limit int) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	err := db.
		Where("scope_key = ?", scopeKey).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.MessageRecord, error) {
	var m domain.MessageRecord
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ExternalMessageIDInScope reports whether scopeKey already stored a message
// with the given external id, for any role.
func ExternalMessageIDInScope(ctx context.Context, db *gorm.DB, scopeKey, externalID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.MessageRecord{}).
		Where("scope_key = ? AND external_message_id = ?", scopeKey, externalID).
		Count(&n).Error
	return n > 0, err
}
