// Package services – InboundService
//
// InboundService is the entry point for transport events: it resolves the
// sender's canonical identity (provisioning one on first contact), derives
// the conversation scope and stores the message through the write guard.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// InboundEvent is what the transport adapter extracts from a delivery.
type InboundEvent struct {
	Provider          string `json:"provider"            binding:"required"`
	ProviderUserID    string `json:"provider_user_id"`
	ChatID            string `json:"chat_id"`
	ExternalMessageID string `json:"external_message_id"`
	Role              string `json:"role"                binding:"required"`
	Content           string `json:"content"             binding:"required"`
}

// InboundResult reports how an event was handled.
type InboundResult struct {
	CanonicalID string `json:"canonical_id,omitempty"`
	ScopeKey    string `json:"scope_key"`
	Stored      bool   `json:"stored"`
	MessageID   string `json:"message_id,omitempty"`
}

// InboundService wires identity resolution to the message write guard.
type InboundService struct {
	Identities *IdentityService
	Messages   *MessageService
}

// HandleEvent processes one delivery. Redeliveries of an event with the same
// external message id return Stored == false.
func (s *InboundService) HandleEvent(ctx context.Context, ev InboundEvent) (InboundResult, error) {
	ctx, span := startSpan(ctx, "InboundService", "HandleEvent",
		attribute.String("provider", ev.Provider),
	)
	defer span.End()

	if strings.TrimSpace(ev.ProviderUserID) == "" && strings.TrimSpace(ev.ChatID) == "" {
		return InboundResult{}, fmt.Errorf("provider user id or chat id is required: %w", ErrInvalidInput)
	}

	var canonicalID string
	if strings.TrimSpace(ev.ProviderUserID) != "" {
		res, err := s.Identities.EnsureCanonicalID(ctx, ev.Provider, ev.ProviderUserID)
		if err != nil {
			return InboundResult{}, err
		}
		canonicalID = res.CanonicalID
	}

	scope := ScopeKeyFor(canonicalID, ev.Provider, ev.ChatID)
	w, err := s.Messages.WriteIfNew(ctx, WriteInput{
		ScopeKey:          scope,
		Role:              ev.Role,
		Content:           ev.Content,
		ExternalMessageID: ev.ExternalMessageID,
	})
	if err != nil {
		return InboundResult{}, err
	}

	out := InboundResult{CanonicalID: canonicalID, ScopeKey: scope, Stored: w.Stored}
	if w.Record != nil {
		out.MessageID = w.Record.ID
	}
	if !w.Stored {
		zerolog.Ctx(ctx).Debug().
			Str("scope_key", scope).
			Str("external_message_id", ev.ExternalMessageID).
			Msg("duplicate delivery suppressed")
	}
	return out, nil
}
