// Package services – IdentityService
//
// IdentityService maps (provider, providerUserId) pairs to canonical
// identities, provisions identities on first contact, and runs the link-code
// protocol that attaches a second provider identity to an existing canonical
// identity.
//
// Resolution order is: direct mapping, then the legacy derivation (read-only;
// it never creates identities). Link confirmation is serialized by a guarded
// pending -> consumed update on the code row: of two concurrent confirmations
// exactly one changes the row.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
	"github.com/tbourn/assistant-core/internal/observability"
	"github.com/tbourn/assistant-core/internal/repo"
)

const (
	// DefaultLinkCodeTTL is how long a link code stays redeemable.
	DefaultLinkCodeTTL = 10 * time.Minute

	maxIDAttempts   = 5
	maxCodeAttempts = 5
)

var (
	errIDSpaceExhausted   = errors.New("could not mint a unique canonical id")
	errCodeSpaceExhausted = errors.New("could not allocate a unique link code")
)

// IdentityService implements the identity registry.
type IdentityService struct {
	DB      *gorm.DB
	IDs     IDProvider   // defaults to UUIDProvider{Prefix: "cid_"}
	Legacy  LegacyScheme // nil means DefaultLegacyScheme
	CodeTTL time.Duration
	Now     func() time.Time
}

// LinkStatus is what GetLinkStatus reports for a provider identity.
type LinkStatus struct {
	Link    *domain.ProviderIdentity `json:"link,omitempty"`
	Pending *domain.LinkCode         `json:"pending,omitempty"`
}

func (s *IdentityService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *IdentityService) ids() IDProvider {
	if s.IDs != nil {
		return s.IDs
	}
	return UUIDProvider{Prefix: DefaultIDPrefix}
}

func (s *IdentityService) legacy() LegacyScheme {
	if s.Legacy != nil {
		return s.Legacy
	}
	return DefaultLegacyScheme()
}

func (s *IdentityService) ttl() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultLinkCodeTTL
}

func startSpan(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, "services/"+component, name, attrs...)
}

// Resolve returns the canonical identity of (provider, providerUserID)
// without creating anything.
func (s *IdentityService) Resolve(ctx context.Context, provider, providerUserID string) (Resolution, error) {
	ctx, span := startSpan(ctx, "IdentityService", "Resolve",
		attribute.String("provider", provider),
	)
	defer span.End()

	provider, providerUserID, err := normalizePair(provider, providerUserID)
	if err != nil {
		return Resolution{}, err
	}
	res, err := s.resolveIn(s.DB.WithContext(ctx), provider, providerUserID)
	return res, storeErr("resolve identity", err)
}

func (s *IdentityService) resolveIn(db *gorm.DB, provider, providerUserID string) (Resolution, error) {
	pi, err := repo.GetProviderIdentity(db, provider, providerUserID)
	switch {
	case err == nil:
		return Resolution{CanonicalID: pi.CanonicalID, Kind: DirectlyMapped}, nil
	case !isNotFound(err):
		return Resolution{}, err
	}

	if legacyID, ok := s.legacy().DeriveLegacyID(provider, providerUserID); ok {
		exists, err := repo.IdentityExists(db, legacyID)
		if err != nil {
			return Resolution{}, err
		}
		if exists {
			return Resolution{CanonicalID: legacyID, Kind: LegacyDerived}, nil
		}
	}
	return Resolution{Kind: Unresolved}, nil
}

// EnsureCanonicalID resolves (provider, providerUserID) and, on first
// contact, provisions a fresh opaque identity mapped to it. Concurrent first
// contacts for the same pair end up with the same identity.
func (s *IdentityService) EnsureCanonicalID(ctx context.Context, provider, providerUserID string) (Resolution, error) {
	ctx, span := startSpan(ctx, "IdentityService", "EnsureCanonicalID",
		attribute.String("provider", provider),
	)
	defer span.End()

	provider, providerUserID, err := normalizePair(provider, providerUserID)
	if err != nil {
		return Resolution{}, err
	}

	var out Resolution
	err = inTx(ctx, s.DB, "ensure canonical id", func(tx *gorm.DB) error {
		res, err := s.ensureIn(ctx, tx, provider, providerUserID)
		out = res
		return err
	})
	if err != nil {
		return Resolution{}, err
	}
	span.SetAttributes(attribute.String("identity.kind", out.Kind.String()))
	return out, nil
}

func (s *IdentityService) ensureIn(ctx context.Context, tx *gorm.DB, provider, providerUserID string) (Resolution, error) {
	if err := repo.AcquireKeyLock(ctx, tx, "identity:"+provider+":"+providerUserID); err != nil {
		return Resolution{}, err
	}
	res, err := s.resolveIn(tx, provider, providerUserID)
	if err != nil || res.Found() {
		return res, err
	}

	id, err := mintID(tx, s.ids())
	if err != nil {
		return Resolution{}, err
	}
	if _, err := repo.CreateIdentity(tx, id, domain.SchemeOpaque); err != nil {
		return Resolution{}, err
	}

	now := s.now()
	claim, err := repo.ClaimOnce(ctx, tx, &domain.ProviderIdentity{
		ID:             newRowID(),
		Provider:       provider,
		ProviderUserID: providerUserID,
		CanonicalID:    id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, repo.Key{
		Columns: []string{"provider", "provider_user_id"},
		Values:  []any{provider, providerUserID},
	})
	if err != nil {
		observability.ObserveClaim("identity", observability.OutcomeError)
		return Resolution{}, err
	}
	if !claim.Claimed {
		// Another first contact won; drop the identity minted here.
		observability.ObserveClaim("identity", observability.OutcomeObserved)
		if err := tx.Delete(&domain.Identity{}, "id = ?", id).Error; err != nil {
			return Resolution{}, err
		}
		return Resolution{CanonicalID: claim.Record.CanonicalID, Kind: DirectlyMapped}, nil
	}

	observability.ObserveClaim("identity", observability.OutcomeClaimed)
	zerolog.Ctx(ctx).Info().
		Str("provider", provider).
		Str("canonical_id", id).
		Msg("provisioned canonical identity")
	return Resolution{CanonicalID: id, Kind: DirectlyMapped}, nil
}

// CreateLinkCode issues a pending code tied to the requester's canonical
// identity. Earlier pending codes of the requester are revoked. A requester
// without an identity gets one provisioned first.
func (s *IdentityService) CreateLinkCode(ctx context.Context, provider, providerUserID string) (*domain.LinkCode, error) {
	ctx, span := startSpan(ctx, "IdentityService", "CreateLinkCode",
		attribute.String("provider", provider),
	)
	defer span.End()

	provider, providerUserID, err := normalizePair(provider, providerUserID)
	if err != nil {
		return nil, err
	}

	var out *domain.LinkCode
	err = inTx(ctx, s.DB, "create link code", func(tx *gorm.DB) error {
		out = nil
		res, err := s.ensureIn(ctx, tx, provider, providerUserID)
		if err != nil {
			return err
		}
		if _, err := repo.RevokePendingLinkCodes(tx, provider, providerUserID); err != nil {
			return err
		}

		now := s.now()
		for i := 0; i < maxCodeAttempts; i++ {
			code, err := newLinkCode()
			if err != nil {
				return err
			}
			lc := &domain.LinkCode{
				Code:           code,
				CanonicalID:    res.CanonicalID,
				Provider:       provider,
				ProviderUserID: providerUserID,
				Status:         domain.LinkPending,
				ExpiresAt:      now.Add(s.ttl()),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			claim, err := repo.ClaimOnce(ctx, tx, lc, repo.Key{Columns: []string{"code"}, Values: []any{code}})
			if err != nil {
				return err
			}
			if claim.Claimed {
				observability.ObserveClaim("link_code", observability.OutcomeClaimed)
				out = lc
				return nil
			}
			observability.ObserveClaim("link_code", observability.OutcomeObserved)
		}
		return errCodeSpaceExhausted
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmLinkCode redeems code for (provider, providerUserID) and maps that
// provider identity to the code's canonical identity, replacing any previous
// mapping. It fails with ErrCodeNotFound, ErrCodeAlreadyUsed or ErrCodeExpired.
func (s *IdentityService) ConfirmLinkCode(ctx context.Context, code, provider, providerUserID string) (string, error) {
	ctx, span := startSpan(ctx, "IdentityService", "ConfirmLinkCode",
		attribute.String("provider", provider),
	)
	defer span.End()

	code = normalizeCode(code)
	provider, providerUserID, err := normalizePair(provider, providerUserID)
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("code is required: %w", ErrInvalidInput)
	}

	var canonicalID string
	err = inTx(ctx, s.DB, "confirm link code", func(tx *gorm.DB) error {
		lc, err := repo.GetLinkCode(tx, code)
		if err != nil {
			if isNotFound(err) {
				return ErrCodeNotFound
			}
			return err
		}
		if lc.Status != domain.LinkPending {
			return ErrCodeAlreadyUsed
		}
		now := s.now()
		if !now.Before(lc.ExpiresAt) {
			return ErrCodeExpired
		}

		prior, err := s.resolveIn(tx, provider, providerUserID)
		if err != nil {
			return err
		}
		updates := map[string]any{
			"status":               domain.LinkConsumed,
			"consumed_by_provider": provider,
			"consumed_by_user_id":  providerUserID,
			"consumed_at":          now,
			"updated_at":           now,
		}
		if prior.Found() {
			updates["linked_by"] = prior.CanonicalID
		}
		ok, err := repo.ConditionalUpdate(ctx, tx, &domain.LinkCode{}, updates,
			"code = ? AND status = ?", code, domain.LinkPending)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeAlreadyUsed
		}

		if err := repo.UpsertProviderIdentity(tx, provider, providerUserID, lc.CanonicalID); err != nil {
			return err
		}
		canonicalID = lc.CanonicalID
		return nil
	})

	observability.ObserveLinkConfirmation(confirmOutcome(err))
	if err != nil {
		return "", err
	}
	zerolog.Ctx(ctx).Info().
		Str("provider", provider).
		Str("canonical_id", canonicalID).
		Msg("link code confirmed")
	return canonicalID, nil
}

func confirmOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeAlreadyUsed):
		return "already_used"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	default:
		return "error"
	}
}

// RevokeLinkCode moves a pending code to revoked.
func (s *IdentityService) RevokeLinkCode(ctx context.Context, code string) error {
	ctx, span := startSpan(ctx, "IdentityService", "RevokeLinkCode")
	defer span.End()

	code = normalizeCode(code)
	if code == "" {
		return fmt.Errorf("code is required: %w", ErrInvalidInput)
	}
	return inTx(ctx, s.DB, "revoke link code", func(tx *gorm.DB) error {
		if _, err := repo.GetLinkCode(tx, code); err != nil {
			if isNotFound(err) {
				return ErrCodeNotFound
			}
			return err
		}
		ok, err := repo.ConditionalUpdate(ctx, tx, &domain.LinkCode{},
			map[string]any{"status": domain.LinkRevoked, "updated_at": s.now()},
			"code = ? AND status = ?", code, domain.LinkPending)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeAlreadyUsed
		}
		return nil
	})
}

// GetLinkStatus returns the active mapping of (provider, providerUserID) and
// the newest pending, unexpired code it issued. Either may be nil.
func (s *IdentityService) GetLinkStatus(ctx context.Context, provider, providerUserID string) (*LinkStatus, error) {
	ctx, span := startSpan(ctx, "IdentityService", "GetLinkStatus",
		attribute.String("provider", provider),
	)
	defer span.End()

	provider, providerUserID, err := normalizePair(provider, providerUserID)
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	out := &LinkStatus{}

	pi, err := repo.GetProviderIdentity(db, provider, providerUserID)
	switch {
	case err == nil:
		out.Link = pi
	case !isNotFound(err):
		return nil, storeErr("link status", err)
	}

	lc, err := repo.LatestPendingLinkCode(db, provider, providerUserID, s.now())
	switch {
	case err == nil:
		out.Pending = lc
	case !isNotFound(err):
		return nil, storeErr("link status", err)
	}
	return out, nil
}

// ListProviders returns every provider identity linked to canonicalID.
func (s *IdentityService) ListProviders(ctx context.Context, canonicalID string) ([]domain.ProviderIdentity, error) {
	ctx, span := startSpan(ctx, "IdentityService", "ListProviders",
		attribute.String("canonical_id", canonicalID),
	)
	defer span.End()

	canonicalID = strings.TrimSpace(canonicalID)
	if canonicalID == "" {
		return nil, fmt.Errorf("canonical id is required: %w", ErrInvalidInput)
	}
	db := s.DB.WithContext(ctx)
	exists, err := repo.IdentityExists(db, canonicalID)
	if err != nil {
		return nil, storeErr("list providers", err)
	}
	if !exists {
		return nil, fmt.Errorf("identity %s: %w", canonicalID, ErrNotFound)
	}
	out, err := repo.ListProviderIdentities(db, canonicalID)
	if err != nil {
		return nil, storeErr("list providers", err)
	}
	return out, nil
}
