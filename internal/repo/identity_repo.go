// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for canonical
// identities and provider identity mappings.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/assistant-core/internal/domain"
)

// GetProviderIdentity fetches the mapping for (provider, providerUserID).
func GetProviderIdentity(db *gorm.DB, provider, providerUserID string) (*domain.ProviderIdentity, error) {
	var pi domain.ProviderIdentity
	if err := db.Where("provider = ? AND provider_user_id = ?", provider, providerUserID).First(&pi).Error; err != nil {
		return nil, err
	}
	return &pi, nil
}

// ListProviderIdentities returns every mapping owned by canonicalID, oldest first.
func ListProviderIdentities(db *gorm.DB, canonicalID string) ([]domain.ProviderIdentity, error) {
	var out []domain.ProviderIdentity
	err := db.Where("canonical_id = ?", canonicalID).Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// GetIdentity fetches a canonical identity row by id.
func GetIdentity(db *gorm.DB, id string) (*domain.Identity, error) {
	var ident domain.Identity
	if err := db.Where("id = ?", id).First(&ident).Error; err != nil {
		return nil, err
	}
	return &ident, nil
}

// IdentityExists reports whether an identity row with id exists.
func IdentityExists(db *gorm.DB, id string) (bool, error) {
	var n int64
	if err := db.Model(&domain.Identity{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateIdentity inserts a canonical identity row.
func CreateIdentity(db *gorm.DB, id, scheme string) (*domain.Identity, error) {
	now := time.Now().UTC()
	ident := &domain.Identity{ID: id, Scheme: scheme, CreatedAt: now, UpdatedAt: now}
	return ident, db.Create(ident).Error
}

// UpsertProviderIdentity points (provider, providerUserID) at canonicalID,
// overwriting any existing mapping for the pair.
func UpsertProviderIdentity(db *gorm.DB, provider, providerUserID, canonicalID string) error {
	now := time.Now().UTC()
	pi := &domain.ProviderIdentity{
		ID:             uuid.NewString(),
		Provider:       provider,
		ProviderUserID: providerUserID,
		CanonicalID:    canonicalID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"canonical_id", "updated_at"}),
	}).Create(pi).Error
}
