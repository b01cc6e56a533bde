// Package services – MigrationService
//
// MigrationService replaces a canonical identity's token with a freshly minted
// one and repoints every dependent row in a single transaction. Either every
// relation is rewritten and an audit row is written, or nothing changes.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
	"github.com/tbourn/assistant-core/internal/observability"
	"github.com/tbourn/assistant-core/internal/repo"
)

// Relations touched by a migration, as reported in plans and results.
const (
	RelIdentities          = "identities"
	RelProviderIdentities  = "provider_identities"
	RelLinkCodesCanonical  = "link_codes.canonical_id"
	RelLinkCodesLinkedBy   = "link_codes.linked_by"
	RelMessagesScope       = "messages.scope_key"
	RelRunsSubject         = "runs.subject_id"
	RelPromotedLegacyLinks = "provider_identities.promoted"
)

// rewrite is one identity-indexed column and how its value is derived from
// a canonical id.
type rewrite struct {
	rel    string
	model  any
	column string
	value  func(id string) string
}

func sameID(id string) string { return id }

// ScopeKeyForIdentity is the message scope of a canonical identity.
func ScopeKeyForIdentity(canonicalID string) string { return "id:" + canonicalID }

var rewrites = []rewrite{
	{RelProviderIdentities, &domain.ProviderIdentity{}, "canonical_id", sameID},
	{RelLinkCodesCanonical, &domain.LinkCode{}, "canonical_id", sameID},
	{RelLinkCodesLinkedBy, &domain.LinkCode{}, "linked_by", sameID},
	{RelMessagesScope, &domain.MessageRecord{}, "scope_key", ScopeKeyForIdentity},
	{RelRunsSubject, &domain.RunRecord{}, "subject_id", sameID},
}

// migrationStep runs after each relation is rewritten; tests use it to inject
// failures partway through.
var migrationStep = func(rel string) error { return nil }

// MigrationPlan is the read-only impact report of a migration.
type MigrationPlan struct {
	OldID  string           `json:"old_id"`
	Counts map[string]int64 `json:"counts"`
}

// MigrationResult describes an executed migration.
type MigrationResult struct {
	OldID  string           `json:"old_id"`
	NewID  string           `json:"new_id"`
	Counts map[string]int64 `json:"counts"`
}

// MigrationService implements identity migration.
type MigrationService struct {
	DB     *gorm.DB
	IDs    IDProvider
	Legacy LegacyScheme
	Now    func() time.Time
}

func (s *MigrationService) ids() IDProvider {
	if s.IDs != nil {
		return s.IDs
	}
	return UUIDProvider{Prefix: DefaultIDPrefix}
}

func (s *MigrationService) legacy() LegacyScheme {
	if s.Legacy != nil {
		return s.Legacy
	}
	return DefaultLegacyScheme()
}

func (s *MigrationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// PlanMigration counts the rows a migration of oldID would rewrite.
func (s *MigrationService) PlanMigration(ctx context.Context, oldID string) (*MigrationPlan, error) {
	ctx, span := startSpan(ctx, "MigrationService", "PlanMigration",
		attribute.String("identity.old", oldID),
	)
	defer span.End()

	oldID = strings.TrimSpace(oldID)
	if oldID == "" {
		return nil, fmt.Errorf("identity id is required: %w", ErrInvalidInput)
	}
	db := s.DB.WithContext(ctx)

	if _, err := repo.GetIdentity(db, oldID); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("identity %q: %w", oldID, ErrNotFound)
		}
		return nil, storeErr("plan migration", err)
	}

	plan := &MigrationPlan{OldID: oldID, Counts: map[string]int64{RelIdentities: 1}}
	for _, rw := range rewrites {
		var n int64
		if err := db.Model(rw.model).Where(rw.column+" = ?", rw.value(oldID)).Count(&n).Error; err != nil {
			return nil, storeErr("plan migration", err)
		}
		plan.Counts[rw.rel] = n
	}

	promote, err := s.needsPromotion(db, oldID)
	if err != nil {
		return nil, storeErr("plan migration", err)
	}
	plan.Counts[RelPromotedLegacyLinks] = 0
	if promote {
		plan.Counts[RelPromotedLegacyLinks] = 1
	}
	return plan, nil
}

// needsPromotion reports whether oldID is a legacy id whose provider pair has
// no mapping yet. Without one, the pair would resolve to nothing once the
// legacy id is gone.
func (s *MigrationService) needsPromotion(db *gorm.DB, oldID string) (bool, error) {
	provider, userID, ok := s.legacy().ParseLegacyID(oldID)
	if !ok {
		return false, nil
	}
	_, err := repo.GetProviderIdentity(db, provider, userID)
	switch {
	case err == nil:
		return false, nil
	case isNotFound(err):
		return true, nil
	default:
		return false, err
	}
}

// ExecuteMigration mints a new token for oldID and rewrites every dependent
// row inside one transaction. Any error rolls the whole migration back.
func (s *MigrationService) ExecuteMigration(ctx context.Context, oldID string) (*MigrationResult, error) {
	ctx, span := startSpan(ctx, "MigrationService", "ExecuteMigration",
		attribute.String("identity.old", oldID),
	)
	defer span.End()

	oldID = strings.TrimSpace(oldID)
	if oldID == "" {
		return nil, fmt.Errorf("identity id is required: %w", ErrInvalidInput)
	}

	var result *MigrationResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.execute(ctx, tx, oldID)
		result = res
		return err
	})
	if err != nil {
		observability.ObserveMigration("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "migration rolled back")
		zerolog.Ctx(ctx).Warn().Err(err).Str("old_id", oldID).Msg("identity migration rolled back")
		return nil, storeErr("execute migration", err)
	}

	observability.ObserveMigration("ok")
	span.SetAttributes(attribute.String("identity.new", result.NewID))
	zerolog.Ctx(ctx).Info().
		Str("old_id", oldID).
		Str("new_id", result.NewID).
		Interface("counts", result.Counts).
		Msg("identity migrated")
	return result, nil
}

func (s *MigrationService) execute(ctx context.Context, tx *gorm.DB, oldID string) (*MigrationResult, error) {
	if _, err := repo.GetIdentity(tx, oldID); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("identity %q: %w", oldID, ErrNotFound)
		}
		return nil, err
	}
	promote, err := s.needsPromotion(tx, oldID)
	if err != nil {
		return nil, err
	}

	newID, err := mintID(tx, s.ids())
	if err != nil {
		return nil, err
	}
	now := s.now()
	counts := map[string]int64{}

	// Registry row first: the old token stops existing in this transaction.
	res := tx.Model(&domain.Identity{}).Where("id = ?", oldID).Updates(map[string]any{
		"id":            newID,
		"scheme":        domain.SchemeOpaque,
		"migrated_from": oldID,
		"updated_at":    now,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	counts[RelIdentities] = res.RowsAffected
	if err := migrationStep(RelIdentities); err != nil {
		return nil, err
	}

	for _, rw := range rewrites {
		res := tx.Model(rw.model).
			Where(rw.column+" = ?", rw.value(oldID)).
			UpdateColumn(rw.column, rw.value(newID))
		if res.Error != nil {
			return nil, fmt.Errorf("rewrite %s: %w", rw.rel, res.Error)
		}
		counts[rw.rel] = res.RowsAffected
		if err := migrationStep(rw.rel); err != nil {
			return nil, err
		}
	}

	counts[RelPromotedLegacyLinks] = 0
	if promote {
		provider, userID, _ := s.legacy().ParseLegacyID(oldID)
		claim, err := repo.ClaimOnce(ctx, tx, &domain.ProviderIdentity{
			ID:             newRowID(),
			Provider:       provider,
			ProviderUserID: userID,
			CanonicalID:    newID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, repo.Key{
			Columns: []string{"provider", "provider_user_id"},
			Values:  []any{provider, userID},
		})
		if err != nil {
			return nil, err
		}
		if claim.Claimed {
			counts[RelPromotedLegacyLinks] = 1
		}
	}
	if err := migrationStep(RelPromotedLegacyLinks); err != nil {
		return nil, err
	}

	audit := datatypes.JSONMap{}
	for k, v := range counts {
		audit[k] = v
	}
	if err := tx.Create(&domain.IdentityMigration{
		ID:         newRowID(),
		OldID:      oldID,
		NewID:      newID,
		Counts:     audit,
		ExecutedAt: now,
	}).Error; err != nil {
		return nil, err
	}

	return &MigrationResult{OldID: oldID, NewID: newID, Counts: counts}, nil
}
