package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evikzub/CVTransformer/internal/domain"
)

// DefaultIdleTTL is how long an unused session is kept.
const DefaultIdleTTL = 12 * time.Hour

// Store keeps live sessions in process memory, keyed by an opaque id.
// Sessions idle for longer than the TTL are cleared and forgotten.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	sealer   domain.Sealer
	ttl      time.Duration
	nowFunc  func() time.Time
	logger   *slog.Logger
}

// NewStore creates a session store. A nil sealer keeps cached credentials
// unencrypted.
func NewStore(sealer domain.Sealer, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Store{
		sessions: make(map[string]*domain.Session),
		sealer:   sealer,
		ttl:      ttl,
		nowFunc:  time.Now,
		logger:   logger,
	}
}

// Create registers a new anonymous session.
func (s *Store) Create() *domain.Session {
	sess := domain.NewSession(uuid.NewString(), s.sealer)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Touch(s.nowFunc())
	s.sessions[sess.ID()] = sess
	return sess
}

// Get returns the session with the given id and records the access. An
// idle-expired session is cleared, removed and reported as absent.
func (s *Store) Get(id string) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	now := s.nowFunc()
	if now.Sub(sess.LastSeen()) > s.ttl {
		sess.Clear()
		delete(s.sessions, id)
		return nil, false
	}
	sess.Touch(now)
	return sess, true
}

// Delete clears and forgets a session. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.Clear()
		delete(s.sessions, id)
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CleanupLoop evicts idle sessions every interval until ctx is canceled.
func (s *Store) CleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cleanup(); n > 0 {
				s.logger.DebugContext(ctx, "evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Close clears every session, wiping cached credentials.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		sess.Clear()
		delete(s.sessions, id)
	}
}

func (s *Store) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastSeen()) > s.ttl {
			sess.Clear()
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}
