package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

// DefaultSessionTTL is how long a session lives without an explicit expiry.
const DefaultSessionTTL = 24 * time.Hour

var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore holds live sessions in memory. Expired sessions are evicted
// lazily on lookup.
type SessionStore struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*driven.Session
}

// NewSessionStore creates a session store. A zero ttl uses DefaultSessionTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*driven.Session),
	}
}

// Put stores a session, stamping expiry when unset.
func (s *SessionStore) Put(ctx context.Context, session *driven.Session) error {
	if session.ID == "" {
		return fmt.Errorf("%w: empty session id", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = session.CreatedAt.Add(s.ttl)
	}

	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

// Get returns a live session or domain.ErrSessionInvalid.
func (s *SessionStore) Get(ctx context.Context, id string) (*driven.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionInvalid
	}

	if session.Expired(time.Now()) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, domain.ErrSessionInvalid
	}

	copied := *session
	return &copied, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}
