package impersonation

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelog/impersonation/pkg/directory"
)

// Session lifecycle constants
const (
	// SessionDuration is the fixed lifetime of every impersonation session
	SessionDuration = 30 * time.Minute
	// MaxConcurrentSessions is the per-admin bound on active, non-expired sessions
	MaxConcurrentSessions = 3
	// CleanupInterval is how often the expiration sweeper runs
	CleanupInterval = 5 * time.Minute
)

// SessionState represents the lifecycle state of an impersonation session.
// All ended states are terminal; a session never returns to active.
type SessionState string

const (
	StateActive         SessionState = "active"
	StateEndedManual    SessionState = "ended_manual"
	StateEndedTimeout   SessionState = "ended_timeout"
	StateEndedEmergency SessionState = "ended_emergency"
)

// IsTerminal reports whether the state permits no further transitions
func (s SessionState) IsTerminal() bool {
	return s != StateActive
}

// Session represents a time-boxed grant letting an administrator act with
// another user's privileges. Records are never physically deleted; terminated
// sessions are kept for compliance audit.
type Session struct {
	ID                   uuid.UUID    `json:"id"`
	AdminUserID          uuid.UUID    `json:"admin_user_id"`
	TargetUserID         uuid.UUID    `json:"target_user_id"`
	SessionToken         string       `json:"-"`
	OriginalSessionToken string       `json:"-"`
	Reason               string       `json:"reason"`
	State                SessionState `json:"state"`
	CreatedAt            time.Time    `json:"created_at"`
	ExpiresAt            time.Time    `json:"expires_at"`
	TerminatedAt         *time.Time   `json:"terminated_at,omitempty"`
	CorrelationID        string       `json:"correlation_id"`
}

// IsActive reports whether the session is in the active state
func (s *Session) IsActive() bool {
	return s.State == StateActive
}

// IsExpired reports whether the session's lifetime has passed at the given
// instant. Expiry is time-derived, independent of the state flag.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// CreateSessionParams contains parameters for persisting a new session
type CreateSessionParams struct {
	AdminUserID          uuid.UUID
	TargetUserID         uuid.UUID
	SessionToken         string
	OriginalSessionToken string
	Reason               string
	CorrelationID        string
	CreatedAt            time.Time
	ExpiresAt            time.Time
}

// StartResult is returned by a successful StartImpersonation call
type StartResult struct {
	Success            bool      `json:"success"`
	ImpersonationToken string    `json:"impersonation_token"`
	CorrelationID      string    `json:"correlation_id"`
	ExpiresAt          time.Time `json:"expires"`
}

// EndResult is returned by a successful EndImpersonation call
type EndResult struct {
	Success              bool   `json:"success"`
	OriginalSessionToken string `json:"original_session_token"`
}

// UserSummary is the identity view embedded in a status response
type UserSummary struct {
	ID    uuid.UUID      `json:"id"`
	Name  string         `json:"name,omitempty"`
	Email string         `json:"email"`
	Role  directory.Role `json:"role"`
}

// Status is returned by GetImpersonationStatus. When IsImpersonating is false
// every other field is zero.
type Status struct {
	IsImpersonating    bool         `json:"is_impersonating"`
	Admin              *UserSummary `json:"admin,omitempty"`
	Target             *UserSummary `json:"target,omitempty"`
	ImpersonationToken string       `json:"impersonation_token,omitempty"`
	TimeRemainingMs    int64        `json:"time_remaining_ms,omitempty"`
	CorrelationID      string       `json:"correlation_id,omitempty"`
}

// SearchResult is one candidate target returned by SearchUsersForImpersonation
type SearchResult struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name,omitempty"`
	Email       string         `json:"email"`
	Role        directory.Role `json:"role"`
	CompanyName string         `json:"company_name,omitempty"`
}

// EmergencyResult is returned by EmergencyTerminateAllSessions
type EmergencyResult struct {
	Success            bool   `json:"success"`
	SessionsTerminated int    `json:"sessions_terminated"`
	CorrelationID      string `json:"correlation_id"`
}

// CleanupResult is returned by CleanupExpiredSessions
type CleanupResult struct {
	ExpiredSessionsCleaned int `json:"expired_sessions_cleaned"`
}
