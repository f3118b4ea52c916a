package impersonation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionRepository defines the interface for impersonation session data access.
// Sessions are never deleted; termination is a one-way state transition applied
// through Terminate.
type SessionRepository interface {
	// Create persists a new session in the active state
	Create(ctx context.Context, params CreateSessionParams) (*Session, error)

	// GetByToken retrieves a session by its bearer token.
	// Returns ErrSessionNotFound when no record matches.
	GetByToken(ctx context.Context, token string) (*Session, error)

	// CountActiveByAdmin counts an admin's sessions that are active and not
	// yet expired at the given instant
	CountActiveByAdmin(ctx context.Context, adminUserID uuid.UUID, now time.Time) (int, error)

	// FindAllActive lists every session in the active state, regardless of owner
	FindAllActive(ctx context.Context) ([]Session, error)

	// FindExpiredActive lists sessions still flagged active whose expiry has passed
	FindExpiredActive(ctx context.Context, now time.Time) ([]Session, error)

	// Terminate transitions a session from active to the given terminal state.
	// Returns false with no error when the session was already terminated by
	// another writer; termination is idempotent.
	Terminate(ctx context.Context, id uuid.UUID, state SessionState, terminatedAt time.Time) (bool, error)
}
