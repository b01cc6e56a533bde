// Package handlers exposes the identity registry, link codes, migrations,
// inbound events, message history and run admission over HTTP.
//
// Handlers are transport-thin: they validate input, call application services
// and translate results into HTTP responses. Duplicate outcomes (a message
// already stored, a run already started) are successes, not errors.
package handlers

import (
	"context"

	"github.com/tbourn/assistant-core/internal/domain"
	"github.com/tbourn/assistant-core/internal/services"
)

//
// Service contracts (context-aware)
//

// IdentityService resolves provider identities and runs the link-code protocol.
type IdentityService interface {
	Resolve(ctx context.Context, provider, providerUserID string) (services.Resolution, error)
	CreateLinkCode(ctx context.Context, provider, providerUserID string) (*domain.LinkCode, error)
	ConfirmLinkCode(ctx context.Context, code, provider, providerUserID string) (string, error)
	RevokeLinkCode(ctx context.Context, code string) error
	GetLinkStatus(ctx context.Context, provider, providerUserID string) (*services.LinkStatus, error)
	ListProviders(ctx context.Context, canonicalID string) ([]domain.ProviderIdentity, error)
}

// MigrationService plans and executes identity migrations.
type MigrationService interface {
	PlanMigration(ctx context.Context, oldID string) (*services.MigrationPlan, error)
	ExecuteMigration(ctx context.Context, oldID string) (*services.MigrationResult, error)
}

// InboundService processes one delivered event.
type InboundService interface {
	HandleEvent(ctx context.Context, ev services.InboundEvent) (services.InboundResult, error)
}

// MessageService reads stored messages.
type MessageService interface {
	ListPage(ctx context.Context, scopeKey string, page, pageSize int) ([]domain.MessageRecord, int64, error)
	Get(ctx context.Context, id string) (*domain.MessageRecord, error)
}

// RunService admits and finishes job runs.
type RunService interface {
	TryStart(ctx context.Context, subjectID, runKey string, meta map[string]any) (services.StartResult, error)
	Finish(ctx context.Context, subjectID, runKey string, in services.FinishInput) (*domain.RunRecord, error)
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.RunRecord, error)
}

// Services bundles the dependencies of Handlers.
type Services struct {
	Identities IdentityService
	Migrations MigrationService
	Inbound    InboundService
	Messages   MessageService
	Runs       RunService
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	idSvc  IdentityService
	migSvc MigrationService
	inSvc  InboundService
	msgSvc MessageService
	runSvc RunService
}

// New constructs Handlers bound to the given services.
func New(s Services) *Handlers {
	return &Handlers{
		idSvc:  s.Identities,
		migSvc: s.Migrations,
		inSvc:  s.Inbound,
		msgSvc: s.Messages,
		runSvc: s.Runs,
	}
}
