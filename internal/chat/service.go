// Package chat runs one conversational turn end to end: session lookup,
// resolution, history bookkeeping and outcome publishing.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/session"
)

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Resolver turns a message and its history into an Outcome.
type Resolver interface {
	Resolve(ctx context.Context, input string, history domain.History) domain.Outcome
}

// Publisher ships outcome events downstream.
type Publisher interface {
	Publish(ctx context.Context, event domain.OutcomeEvent) error
}

// Reply is the result of one handled turn.
type Reply struct {
	ConversationID string
	Outcome        domain.Outcome
}

// Service handles chat turns. It implements observability.ReadinessChecker.
type Service struct {
	resolver  Resolver
	store     *session.Store
	publisher Publisher
	logger    *slog.Logger
	ready     atomic.Bool
}

// NewService creates a Service. publisher may be nil to disable outcome events.
func NewService(resolver Resolver, store *session.Store, publisher Publisher, logger *slog.Logger) *Service {
	s := &Service{
		resolver:  resolver,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
	s.ready.Store(true)
	return s
}

// Handle resolves text within the given conversation. An empty or unknown
// conversationID starts a new conversation.
func (s *Service) Handle(ctx context.Context, conversationID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	if conversationID == "" || !s.store.Exists(conversationID) {
		conversationID = s.store.Create()
		s.logger.Debug("conversation started", "conversation_id", conversationID)
	}

	history, err := s.store.History(conversationID)
	if err != nil {
		return Reply{}, fmt.Errorf("read history: %w", err)
	}

	out := s.resolver.Resolve(ctx, text, history)

	now := domain.Now()
	err = s.store.Append(conversationID,
		domain.Turn{Role: domain.RoleUser, Content: text, At: now},
		domain.Turn{Role: domain.RoleAssistant, Content: out.FinalMessage, Payload: domain.PayloadFromOutcome(out), At: now},
	)
	if err != nil {
		// Expired between read and write; the reply is still valid.
		s.logger.Warn("conversation expired before turn was stored", "conversation_id", conversationID, "error", err)
	}

	s.publish(ctx, newOutcomeEvent(conversationID, text, out, now))

	return Reply{ConversationID: conversationID, Outcome: out}, nil
}

// Conversation returns the stored turns of a conversation.
func (s *Service) Conversation(id string) (domain.History, error) {
	return s.store.History(id)
}

func (s *Service) publish(ctx context.Context, event domain.OutcomeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish outcome event",
			"conversation_id", event.ConversationID,
			"event_id", event.ID,
			"action", event.Action,
			"error", err,
		)
	}
}

func newOutcomeEvent(conversationID, input string, out domain.Outcome, at time.Time) domain.OutcomeEvent {
	event := domain.OutcomeEvent{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Input:          input,
		Action:         out.Action,
		CandidateCount: len(out.Candidates()),
		ResolvedAt:     at,
	}
	if a := out.Address(); a != nil {
		event.ZipCode = a.ZipCode
	}
	if loc, ok := out.Location(); ok {
		event.City = loc.City
		event.State = loc.State
	} else if r, ok := out.Result.(domain.CityChoices); ok {
		event.City = r.Query
	}
	return event
}

// CheckReadiness reports whether the service accepts new turns.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("service is shutting down")
	}
	return nil
}

// Drain marks the service not ready so load balancers stop routing to it.
func (s *Service) Drain() {
	s.ready.Store(false)
}
