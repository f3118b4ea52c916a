package impersonation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemorySessionRepository implements SessionRepository using in-memory storage
type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
	byToken  map[string]uuid.UUID
}

// NewInMemorySessionRepository creates a new in-memory session repository
func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[uuid.UUID]Session),
		byToken:  make(map[string]uuid.UUID),
	}
}

// Create persists a new session in the active state
func (r *InMemorySessionRepository) Create(ctx context.Context, params CreateSessionParams) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := Session{
		ID:                   uuid.New(),
		AdminUserID:          params.AdminUserID,
		TargetUserID:         params.TargetUserID,
		SessionToken:         params.SessionToken,
		OriginalSessionToken: params.OriginalSessionToken,
		Reason:               params.Reason,
		State:                StateActive,
		CreatedAt:            params.CreatedAt,
		ExpiresAt:            params.ExpiresAt,
		CorrelationID:        params.CorrelationID,
	}

	r.sessions[session.ID] = session
	r.byToken[session.SessionToken] = session.ID
	return &session, nil
}

// GetByToken retrieves a session by its bearer token
func (r *InMemorySessionRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session := r.sessions[id]
	return &session, nil
}

// CountActiveByAdmin counts an admin's active, non-expired sessions
func (r *InMemorySessionRepository) CountActiveByAdmin(ctx context.Context, adminUserID uuid.UUID, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, session := range r.sessions {
		if session.AdminUserID == adminUserID && session.IsActive() && !session.IsExpired(now) {
			count++
		}
	}
	return count, nil
}

// FindAllActive lists every active session regardless of owner
func (r *InMemorySessionRepository) FindAllActive(ctx context.Context) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Session
	for _, session := range r.sessions {
		if session.IsActive() {
			result = append(result, session)
		}
	}
	return result, nil
}

// FindExpiredActive lists sessions still flagged active whose expiry has passed
func (r *InMemorySessionRepository) FindExpiredActive(ctx context.Context, now time.Time) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Session
	for _, session := range r.sessions {
		if session.IsActive() && session.IsExpired(now) {
			result = append(result, session)
		}
	}
	return result, nil
}

// Terminate transitions a session to a terminal state. Returns false when the
// session was already terminated.
func (r *InMemorySessionRepository) Terminate(ctx context.Context, id uuid.UUID, state SessionState, terminatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || !session.IsActive() {
		return false, nil
	}

	session.State = state
	session.TerminatedAt = &terminatedAt
	r.sessions[id] = session
	return true, nil
}
