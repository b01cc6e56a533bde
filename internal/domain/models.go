// Package domain defines the persistence models for canonical identities,
// provider identities, link codes, stored messages and job runs. These types
// are mapped with GORM and every uniqueness guarantee the services rely on is
// expressed here as a database index.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Identity schemes.
const (
	SchemeLegacy = "legacy"
	SchemeOpaque = "opaque"
)

// Identity is the registry row of a canonical identity: one end-user across
// all providers. The ID is an opaque token and is never mutated in place by
// normal operation; migration rewrites it atomically together with every
// dependent row.
//
// Fields:
//   - ID: canonical token (legacy "tg-legacy:111" or opaque "cid_<uuid>").
//   - Scheme: "legacy" or "opaque".
//   - MigratedFrom: previous token when this row was produced by a migration.
type Identity struct {
	ID           string    `json:"id"                      gorm:"type:varchar(128);primaryKey"`
	Scheme       string    `json:"scheme"                  gorm:"type:varchar(16);not null;default:'opaque'"`
	MigratedFrom *string   `json:"migrated_from,omitempty" gorm:"type:varchar(128);index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Identity.
func (Identity) TableName() string { return "identities" }

// ProviderIdentity maps (provider, provider_user_id) to a canonical identity.
// The pair is unique system-wide; one canonical identity may own many rows.
type ProviderIdentity struct {
	ID             string    `json:"id"               gorm:"type:char(36);primaryKey"`
	Provider       string    `json:"provider"         gorm:"type:varchar(32);not null;uniqueIndex:ux_provider_user,priority:1"`
	ProviderUserID string    `json:"provider_user_id" gorm:"type:varchar(190);not null;uniqueIndex:ux_provider_user,priority:2"`
	CanonicalID    string    `json:"canonical_id"     gorm:"type:varchar(128);not null;index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for ProviderIdentity.
func (ProviderIdentity) TableName() string { return "provider_identities" }

// Link code statuses.
const (
	LinkPending  = "pending"
	LinkConsumed = "consumed"
	LinkRevoked  = "revoked"
)

// LinkCode is a short-lived code issued by one provider identity and redeemed
// by another to merge the second into the first one's canonical identity.
//
// Fields:
//   - Code: the opaque code (primary key, so uniqueness is enforced by the store).
//   - CanonicalID: identity the redeemer will be linked to.
//   - Provider / ProviderUserID: the issuing provider identity.
//   - Status: pending, consumed or revoked. pending -> consumed happens at most once.
//   - ExpiresAt: checked lazily on read and confirm.
//   - ConsumedBy*: the redeeming provider identity.
//   - LinkedBy: the redeemer's canonical identity before the link, if it had one.
type LinkCode struct {
	Code               string     `json:"code"                             gorm:"type:varchar(16);primaryKey"`
	CanonicalID        string     `json:"canonical_id"                     gorm:"type:varchar(128);not null;index"`
	Provider           string     `json:"provider"                         gorm:"type:varchar(32);not null;index:idx_link_codes_issuer,priority:1"`
	ProviderUserID     string     `json:"provider_user_id"                 gorm:"type:varchar(190);not null;index:idx_link_codes_issuer,priority:2"`
	Status             string     `json:"status"                           gorm:"type:varchar(16);not null;check:status IN ('pending','consumed','revoked')"`
	ExpiresAt          time.Time  `json:"expires_at"                       gorm:"not null;index"`
	ConsumedByProvider *string    `json:"consumed_by_provider,omitempty"   gorm:"type:varchar(32)"`
	ConsumedByUserID   *string    `json:"consumed_by_user_id,omitempty"    gorm:"type:varchar(190)"`
	ConsumedAt         *time.Time `json:"consumed_at,omitempty"`
	LinkedBy           *string    `json:"linked_by,omitempty"              gorm:"type:varchar(128);index"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for LinkCode.
func (LinkCode) TableName() string { return "link_codes" }

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// MessageRecord is one stored utterance in a conversation scope.
//
// ScopeKey is "id:<canonical>" when the sender's identity is known and
// "chat:<provider>:<chat>" otherwise. When ExternalMessageID is set, the
// unique index guarantees at most one record per (scope, role, external id).
// NULL external ids never collide, so messages without a stable transport
// identifier are only deduplicated best-effort by the service.
type MessageRecord struct {
	ID                string    `json:"id"                            gorm:"type:char(36);primaryKey"`
	ScopeKey          string    `json:"scope_key"                     gorm:"type:varchar(200);not null;uniqueIndex:ux_messages_scope_role_ext,priority:1;index:idx_messages_scope_created,priority:1"`
	Role              string    `json:"role"                          gorm:"type:varchar(16);not null;uniqueIndex:ux_messages_scope_role_ext,priority:2;check:role IN ('user','assistant','system','tool')"`
	ExternalMessageID *string   `json:"external_message_id,omitempty" gorm:"type:varchar(190);uniqueIndex:ux_messages_scope_role_ext,priority:3"`
	Content           string    `json:"content"                       gorm:"type:text;not null"`
	ContentHash       string    `json:"content_hash"                  gorm:"type:char(64);not null"`
	CreatedAt         time.Time `json:"created_at"                    gorm:"index:idx_messages_scope_created,priority:2"`
}

// TableName returns the database table name for MessageRecord.
func (MessageRecord) TableName() string { return "messages" }

// Run statuses.
const (
	RunRunning = "running"
	RunOK      = "ok"
	RunFailed  = "failed"
)

// RunRecord tracks one logical execution of a scheduled or triggered job.
// (subject_id, run_key) is unique: only the caller that created the record
// (or reclaimed it, see services.RunService) performs the work.
type RunRecord struct {
	ID         string            `json:"id"                    gorm:"type:char(36);primaryKey"`
	SubjectID  string            `json:"subject_id"            gorm:"type:varchar(190);not null;uniqueIndex:ux_runs_subject_key,priority:1"`
	RunKey     string            `json:"run_key"               gorm:"type:varchar(190);not null;uniqueIndex:ux_runs_subject_key,priority:2"`
	Status     string            `json:"status"                gorm:"type:varchar(16);not null;index;check:status IN ('running','ok','failed')"`
	Attempts   int               `json:"attempts"              gorm:"not null;default:1"`
	Lease      string            `json:"-"                     gorm:"type:char(36);not null;default:''"` // current executor
	Meta       datatypes.JSONMap `json:"meta,omitempty"`
	StartedAt  time.Time         `json:"started_at"            gorm:"not null"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	FailCode   *string           `json:"fail_code,omitempty"   gorm:"type:varchar(64)"`
	FailReason *string           `json:"fail_reason,omitempty" gorm:"type:text"`
	RetryAt    *time.Time        `json:"retry_at,omitempty"    gorm:"index"`
	MaxRetries *int              `json:"max_retries,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TableName returns the database table name for RunRecord.
func (RunRecord) TableName() string { return "runs" }

// IdentityMigration is the audit trail of an executed identity migration,
// written in the same transaction as the rewrite itself.
type IdentityMigration struct {
	ID         string            `json:"id"          gorm:"type:char(36);primaryKey"`
	OldID      string            `json:"old_id"      gorm:"type:varchar(128);not null;index"`
	NewID      string            `json:"new_id"      gorm:"type:varchar(128);not null;index"`
	Counts     datatypes.JSONMap `json:"counts"`
	ExecutedAt time.Time         `json:"executed_at" gorm:"not null"`
}

// TableName returns the database table name for IdentityMigration.
func (IdentityMigration) TableName() string { return "identity_migrations" }
