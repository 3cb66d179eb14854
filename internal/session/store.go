// Package session keeps conversation histories in memory.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
)

// ErrUnknownConversation is returned for IDs the store does not hold,
// including conversations that expired.
var ErrUnknownConversation = errors.New("unknown conversation")

type conversation struct {
	turns    domain.History
	lastSeen time.Time
}

// Store is a mutex-guarded map of conversations keyed by UUID.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*conversation
	ttl      time.Duration
	maxTurns int
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

// NewStore creates a Store. Conversations idle longer than ttl are dropped
// by Sweep; each keeps at most maxTurns turns.
func NewStore(ttl time.Duration, maxTurns int, metrics *observability.Metrics) *Store {
	return &Store{
		sessions: make(map[string]*conversation),
		ttl:      ttl,
		maxTurns: maxTurns,
		clock:    clockwork.NewRealClock(),
		metrics:  metrics,
	}
}

// Create starts an empty conversation and returns its ID.
func (s *Store) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &conversation{lastSeen: s.clock.Now()}
	s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return id
}

// Exists reports whether id names a live conversation.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(id)
	return ok
}

// lookup returns the conversation for id, dropping it when it has been
// idle past the TTL even if Sweep has not run yet. Callers hold s.mu.
func (s *Store) lookup(id string) (*conversation, bool) {
	c, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && c.lastSeen.Before(s.clock.Now().Add(-s.ttl)) {
		delete(s.sessions, id)
		s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
		return nil, false
	}
	return c, true
}

// History returns a copy of the conversation's turns.
func (s *Store) History(id string) (domain.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookup(id)
	if !ok {
		return nil, ErrUnknownConversation
	}
	out := make(domain.History, len(c.turns))
	copy(out, c.turns)
	return out, nil
}

// Append adds turns in order, dropping the oldest beyond maxTurns.
func (s *Store) Append(id string, turns ...domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookup(id)
	if !ok {
		return ErrUnknownConversation
	}
	c.turns = append(c.turns, turns...)
	if s.maxTurns > 0 && len(c.turns) > s.maxTurns {
		c.turns = append(domain.History(nil), c.turns[len(c.turns)-s.maxTurns:]...)
	}
	c.lastSeen = s.clock.Now()
	return nil
}

// Sweep removes conversations idle longer than the TTL and returns how
// many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Now().Add(-s.ttl)
	removed := 0
	for id, c := range s.sessions {
		if c.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return removed
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunJanitor sweeps every interval until ctx is cancelled.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}
