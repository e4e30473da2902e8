package driven

import (
	"context"
	"time"

	"github.com/repobrain/repobrain/internal/core/domain"
)

// Session binds a browser session to a provider credential. Sessions are
// created by the authentication layer, which is outside the core.
type Session struct {
	ID         string
	User       domain.OwnerUser
	Credential string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the session has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SessionStore holds live sessions. It is a process-scoped component with an
// explicit lifecycle, not ambient module state.
type SessionStore interface {
	// Put stores a session.
	Put(ctx context.Context, session *Session) error

	// Get returns a live session or domain.ErrSessionInvalid.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, id string) error
}
