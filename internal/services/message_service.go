// Package services – MessageService
//
// MessageService turns at-least-once delivery into at-most-once storage of
// messages. With an external message id, a transaction-scoped lock on the
// coordination key plus an insert-if-absent on the unique
// (scope_key, role, external_message_id) index guarantee exactly one record
// per key. Without one, it falls back to comparing against the most recent
// records of the scope, which is best effort only.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/domain"
	"github.com/tbourn/assistant-core/internal/observability"
	"github.com/tbourn/assistant-core/internal/repo"
)

// Hash domains. The version suffix allows changing the derivation later.
const (
	domainMessageKey = "assistant/message-key/v1"
)

// DefaultRecentWindow is how many recent records the fallback path compares.
const DefaultRecentWindow = 1

// WriteInput is one message to store.
type WriteInput struct {
	ScopeKey          string
	Role              string
	Content           string
	ExternalMessageID string // optional
}

// WriteResult reports whether the message was stored. Record is the stored
// row, or the existing one when a duplicate was suppressed on the keyed path.
type WriteResult struct {
	Stored bool                  `json:"stored"`
	Record *domain.MessageRecord `json:"record,omitempty"`
}

// MessageService implements the idempotent write guard.
type MessageService struct {
	DB           *gorm.DB
	RecentWindow int
	Now          func() time.Time
}

func (s *MessageService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ScopeKeyFor returns "id:<canonical>" when the sender's identity is known and
// "chat:<provider>:<chat>" otherwise.
func ScopeKeyFor(canonicalID, provider, chatID string) string {
	if canonicalID = strings.TrimSpace(canonicalID); canonicalID != "" {
		return ScopeKeyForIdentity(canonicalID)
	}
	return "chat:" + normalizeProvider(provider) + ":" + strings.TrimSpace(chatID)
}

// ContentHash is the hex SHA-256 of the NFC-normalized content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(content)))
	return hex.EncodeToString(sum[:])
}

// CoordinationKey derives the lock key of (scopeKey, role, externalID).
// Fields are NUL-separated after a domain prefix so no two distinct inputs
// share a key.
func CoordinationKey(scopeKey, role, externalID string) string {
	h := sha256.New()
	h.Write([]byte(domainMessageKey))
	for _, part := range []string{scopeKey, role, externalID} {
		h.Write([]byte{0x00})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func validRole(role string) bool {
	switch role {
	case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem, domain.RoleTool:
		return true
	}
	return false
}

// WriteIfNew stores the message unless it is a duplicate.
func (s *MessageService) WriteIfNew(ctx context.Context, in WriteInput) (WriteResult, error) {
	ctx, span := startSpan(ctx, "MessageService", "WriteIfNew",
		attribute.String("scope.key", in.ScopeKey),
		attribute.String("role", in.Role),
		attribute.Bool("has_external_id", in.ExternalMessageID != ""),
	)
	defer span.End()

	in.ScopeKey = strings.TrimSpace(in.ScopeKey)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	in.ExternalMessageID = strings.TrimSpace(in.ExternalMessageID)
	if in.ScopeKey == "" || in.Content == "" {
		return WriteResult{}, fmt.Errorf("scope key and content are required: %w", ErrInvalidInput)
	}
	if !validRole(in.Role) {
		return WriteResult{}, fmt.Errorf("unknown role %q: %w", in.Role, ErrInvalidInput)
	}

	var (
		res WriteResult
		err error
	)
	if in.ExternalMessageID != "" {
		res, err = s.writeKeyed(ctx, in)
	} else {
		res, err = s.writeUnkeyed(ctx, in)
	}
	if err != nil {
		observability.ObserveClaim("message", observability.OutcomeError)
		return WriteResult{}, err
	}
	if res.Stored {
		observability.ObserveClaim("message", observability.OutcomeClaimed)
	} else {
		observability.ObserveClaim("message", observability.OutcomeObserved)
	}
	span.SetAttributes(attribute.Bool("stored", res.Stored))
	return res, nil
}

func (s *MessageService) newRecord(in WriteInput, hash string) *domain.MessageRecord {
	rec := &domain.MessageRecord{
		ID:          newRowID(),
		ScopeKey:    in.ScopeKey,
		Role:        in.Role,
		Content:     in.Content,
		ContentHash: hash,
		CreatedAt:   s.now(),
	}
	if in.ExternalMessageID != "" {
		ext := in.ExternalMessageID
		rec.ExternalMessageID = &ext
	}
	return rec
}

func (s *MessageService) writeKeyed(ctx context.Context, in WriteInput) (WriteResult, error) {
	hash := ContentHash(in.Content)
	key := CoordinationKey(in.ScopeKey, in.Role, in.ExternalMessageID)

	var out WriteResult
	err := inTx(ctx, s.DB, "write message", func(tx *gorm.DB) error {
		if err := repo.AcquireKeyLock(ctx, tx, key); err != nil {
			return err
		}
		claim, err := repo.ClaimOnce(ctx, tx, s.newRecord(in, hash), repo.Key{
			Columns: []string{"scope_key", "role", "external_message_id"},
			Values:  []any{in.ScopeKey, in.Role, in.ExternalMessageID},
		})
		if err != nil {
			return err
		}
		out = WriteResult{Stored: claim.Claimed, Record: claim.Record}
		return nil
	})
	if err != nil {
		return WriteResult{}, err
	}

	if !out.Stored && out.Record != nil && out.Record.ContentHash != hash {
		// The key wins: a redelivery with edited content is still a duplicate.
		zerolog.Ctx(ctx).Warn().
			Str("scope_key", in.ScopeKey).
			Str("external_message_id", in.ExternalMessageID).
			Msg("duplicate message with different content suppressed")
	}
	return out, nil
}

func (s *MessageService) writeUnkeyed(ctx context.Context, in WriteInput) (WriteResult, error) {
	hash := ContentHash(in.Content)
	if s.recentDuplicate(ctx, in.ScopeKey, in.Role, hash) {
		return WriteResult{Stored: false}, nil
	}

	rec := s.newRecord(in, hash)
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return WriteResult{}, storeErr("write message", err)
	}
	return WriteResult{Stored: true, Record: rec}, nil
}

// recentDuplicate compares against the newest RecentWindow records of the
// scope. Store errors are logged and reported as "no duplicate" so the write
// still happens.
func (s *MessageService) recentDuplicate(ctx context.Context, scopeKey, role, hash string) bool {
	window := s.RecentWindow
	if window <= 0 {
		window = DefaultRecentWindow
	}
	recent, err := repo.LatestMessages(s.DB.WithContext(ctx), scopeKey, window)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("scope_key", scopeKey).Msg("recent duplicate check failed")
		return false
	}
	for _, m := range recent {
		if m.Role == role && m.ContentHash == hash {
			return true
		}
	}
	return false
}

// ListPage returns paginated messages of a scope, oldest first.
func (s *MessageService) ListPage(ctx context.Context, scopeKey string, page, pageSize int) ([]domain.MessageRecord, int64, error) {
	ctx, span := startSpan(ctx, "MessageService", "ListPage",
		attribute.String("scope.key", scopeKey),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)
	defer span.End()

	scopeKey = strings.TrimSpace(scopeKey)
	if scopeKey == "" {
		return nil, 0, fmt.Errorf("scope key is required: %w", ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountMessages(s.DB.WithContext(ctx), scopeKey)
	if err != nil {
		return nil, 0, storeErr("list messages", err)
	}
	if total == 0 {
		return []domain.MessageRecord{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), scopeKey, offset, pageSize)
	if err != nil {
		return nil, 0, storeErr("list messages", err)
	}
	return items, total, nil
}

// Get returns one stored message by id.
func (s *MessageService) Get(ctx context.Context, id string) (*domain.MessageRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("message id is required: %w", ErrInvalidInput)
	}
	m, err := repo.GetMessage(s.DB.WithContext(ctx), id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return nil, storeErr("get message", err)
	}
	return m, nil
}
