package services

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/repo"
)

// ResolutionKind says which lookup path produced a canonical identity.
type ResolutionKind int

const (
	// Unresolved means no mapping exists and no legacy identity is known.
	Unresolved ResolutionKind = iota
	// DirectlyMapped means a ProviderIdentity row points at the identity.
	DirectlyMapped
	// LegacyDerived means the id was derived with the pre-migration scheme
	// and an identity with that id exists. No mapping was created.
	LegacyDerived
)

func (k ResolutionKind) String() string {
	switch k {
	case DirectlyMapped:
		return "direct"
	case LegacyDerived:
		return "legacy"
	default:
		return "unresolved"
	}
}

// Resolution is the tagged result of resolving a provider identity.
type Resolution struct {
	CanonicalID string         `json:"canonical_id,omitempty"`
	Kind        ResolutionKind `json:"-"`
}

// Found reports whether the resolution produced an identity.
func (r Resolution) Found() bool { return r.Kind != Unresolved && r.CanonicalID != "" }

// IDProvider mints canonical identity tokens.
type IDProvider interface {
	NewID() (string, error)
}

// UUIDProvider issues time-ordered UUIDv7 tokens with an optional prefix.
type UUIDProvider struct {
	Prefix string
}

// NewID returns a fresh token such as "cid_0190c1e2-...".
func (p UUIDProvider) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return p.Prefix + id.String(), nil
}

// DefaultIDPrefix prefixes opaque canonical identity tokens.
const DefaultIDPrefix = "cid_"

// mintID draws ids until one is not taken, up to maxIDAttempts.
func mintID(tx *gorm.DB, ids IDProvider) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := ids.NewID()
		if err != nil {
			return "", err
		}
		taken, err := repo.IdentityExists(tx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", errIDSpaceExhausted
}

// newRowID returns a surrogate primary key for rows that have no natural one.
func newRowID() string { return uuid.NewString() }

// LegacyScheme maps a provider to the prefix of its pre-migration ids. The
// legacy id of (provider, user) is "<prefix>:<user>".
type LegacyScheme map[string]string

// DefaultLegacyScheme knows the telegram scheme only.
func DefaultLegacyScheme() LegacyScheme {
	return LegacyScheme{"telegram": "tg-legacy"}
}

// DeriveLegacyID returns the legacy id for (provider, providerUserID), if the
// provider has a legacy scheme.
func (s LegacyScheme) DeriveLegacyID(provider, providerUserID string) (string, bool) {
	prefix, ok := s[provider]
	if !ok || providerUserID == "" {
		return "", false
	}
	return prefix + ":" + providerUserID, true
}

// ParseLegacyID is the inverse of DeriveLegacyID.
func (s LegacyScheme) ParseLegacyID(id string) (provider, providerUserID string, ok bool) {
	head, tail, found := strings.Cut(id, ":")
	if !found || tail == "" {
		return "", "", false
	}
	for p, prefix := range s {
		if prefix == head {
			return p, tail, true
		}
	}
	return "", "", false
}

// normalizeProvider case-folds and trims a provider name.
func normalizeProvider(p string) string {
	return cases.Fold().String(strings.TrimSpace(p))
}

// normalizePair validates and normalizes (provider, providerUserID).
func normalizePair(provider, providerUserID string) (string, string, error) {
	provider = normalizeProvider(provider)
	providerUserID = strings.TrimSpace(providerUserID)
	if provider == "" || providerUserID == "" {
		return "", "", fmt.Errorf("provider and provider user id are required: %w", ErrInvalidInput)
	}
	return provider, providerUserID, nil
}

// Link codes are drawn from an alphabet without 0/O and 1/I.
const (
	linkCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	linkCodeLength   = 6
)

// newLinkCode is a test seam.
var newLinkCode = randomLinkCode

func randomLinkCode() (string, error) {
	buf := make([]byte, linkCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	// len(alphabet) divides 256, so the modulo is unbiased.
	for i, b := range buf {
		buf[i] = linkCodeAlphabet[int(b)%len(linkCodeAlphabet)]
	}
	return string(buf), nil
}

// normalizeCode upper-cases and trims a user-typed code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
