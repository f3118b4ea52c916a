package impersonation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinzhu/copier"

	"github.com/carelog/impersonation/pkg/audit"
	"github.com/carelog/impersonation/pkg/directory"
	"github.com/carelog/impersonation/pkg/tokengenerator"
)

// Service orchestrates impersonation session lifecycle against the session
// store, the user directory, and the audit sink. The service itself is
// stateless; all state lives in the repositories.
type Service struct {
	sessions   SessionRepository
	users      directory.Repository
	authorizer directory.Authorizer
	sink       audit.Sink
	tokens     tokengenerator.TokenGenerator
	now        func() time.Time
}

// Option is a function that configures a Service
type Option func(*Service)

// WithTokenGenerator overrides the default token generator
func WithTokenGenerator(tokens tokengenerator.TokenGenerator) Option {
	return func(s *Service) {
		s.tokens = tokens
	}
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new impersonation service
func NewService(sessions SessionRepository, users directory.Repository, authorizer directory.Authorizer, sink audit.Sink, opts ...Option) *Service {
	s := &Service{
		sessions:   sessions,
		users:      users,
		authorizer: authorizer,
		sink:       sink,
		tokens:     tokengenerator.NewCryptoTokenGenerator(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorizeAdmin resolves the credential and requires the administrator role
func (s *Service) authorizeAdmin(ctx context.Context, credential string) (*directory.Identity, error) {
	identity, err := s.authorizer.Resolve(ctx, credential)
	if err != nil {
		return nil, ErrStoreUnavailable{Op: "authorize", Err: err}
	}
	if identity == nil {
		return nil, ErrAuthenticationRequired
	}
	if !identity.Role.IsAdmin() {
		return nil, ErrInsufficientPermissions
	}
	return identity, nil
}

// StartImpersonation begins an impersonation session for the given admin
// credential against the target identified by email. Every outcome, success or
// failure, is written to the audit sink before this method returns; an audit
// write failure is itself the returned error.
func (s *Service) StartImpersonation(ctx context.Context, adminCredential, targetEmail, reason string) (*StartResult, error) {
	input := map[string]any{
		"target_email": targetEmail,
		"reason":       reason,
	}

	result, correlationID, err := s.startImpersonation(ctx, adminCredential, targetEmail, reason, input)
	if err != nil {
		var auditErr ErrAuditWrite
		if errors.As(err, &auditErr) {
			// The failed write was itself the audit record; nothing more to log
			return nil, err
		}
		if correlationID == "" {
			if fresh, genErr := s.tokens.GenerateCorrelationID(); genErr == nil {
				correlationID = fresh
			}
		}
		if recErr := s.sink.Record(ctx, audit.Event{
			Operation:     audit.OperationStartFailed,
			Success:       false,
			CorrelationID: correlationID,
			InputData:     input,
			ErrorMessage:  err.Error(),
			Timestamp:     s.now(),
		}); recErr != nil {
			slog.Error("Failed to record start_failed audit event", "err", recErr)
			return nil, ErrAuditWrite{Err: recErr}
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) startImpersonation(ctx context.Context, adminCredential, targetEmail, reason string, input map[string]any) (*StartResult, string, error) {
	admin, err := s.authorizeAdmin(ctx, adminCredential)
	if err != nil {
		return nil, "", err
	}
	input["admin_user_id"] = admin.UserID.String()

	now := s.now()
	active, err := s.sessions.CountActiveByAdmin(ctx, admin.UserID, now)
	if err != nil {
		return nil, "", ErrStoreUnavailable{Op: "count active sessions", Err: err}
	}
	if active >= MaxConcurrentSessions {
		return nil, "", ErrMaxConcurrentSessionsExceeded{Limit: MaxConcurrentSessions}
	}

	target, err := s.users.GetUserByEmail(ctx, targetEmail)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, "", ErrTargetUserNotFound{Email: targetEmail}
		}
		return nil, "", ErrStoreUnavailable{Op: "resolve target user", Err: err}
	}
	if target.Role.IsAdmin() {
		return nil, "", ErrCannotImpersonateAdmin
	}
	input["target_user_id"] = target.ID.String()

	sessionToken, err := s.tokens.GenerateSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate session token: %w", err)
	}
	correlationID, err := s.tokens.GenerateCorrelationID()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate correlation id: %w", err)
	}

	session, err := s.sessions.Create(ctx, CreateSessionParams{
		AdminUserID:          admin.UserID,
		TargetUserID:         target.ID,
		SessionToken:         sessionToken,
		OriginalSessionToken: adminCredential,
		Reason:               reason,
		CorrelationID:        correlationID,
		CreatedAt:            now,
		ExpiresAt:            now.Add(SessionDuration),
	})
	if err != nil {
		return nil, correlationID, ErrStoreUnavailable{Op: "create session", Err: err}
	}

	if err := s.sink.Record(ctx, audit.Event{
		Operation:     audit.OperationStart,
		Success:       true,
		CorrelationID: correlationID,
		InputData:     input,
		Timestamp:     s.now(),
	}); err != nil {
		slog.Error("Failed to record start audit event", "correlation_id", correlationID, "err", err)
		return nil, correlationID, ErrAuditWrite{Err: err}
	}

	slog.Info("Impersonation session started",
		"admin_user_id", admin.UserID,
		"target_user_id", target.ID,
		"correlation_id", correlationID,
		"expires_at", session.ExpiresAt)

	return &StartResult{
		Success:            true,
		ImpersonationToken: sessionToken,
		CorrelationID:      correlationID,
		ExpiresAt:          session.ExpiresAt,
	}, correlationID, nil
}

// EndImpersonation terminates the session identified by the impersonation
// token and returns the admin's original credential. Failure branches still
// write an audit record before the error is returned.
func (s *Service) EndImpersonation(ctx context.Context, impersonationToken string) (*EndResult, error) {
	session, err := s.sessions.GetByToken(ctx, impersonationToken)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			err = ErrStoreUnavailable{Op: "get session", Err: err}
		}
		return nil, s.recordEndFailure(ctx, "", nil, err)
	}
	if !session.IsActive() {
		return nil, s.recordEndFailure(ctx, session.CorrelationID, session, ErrAlreadyTerminated)
	}

	terminatedAt := s.now()
	ok, err := s.sessions.Terminate(ctx, session.ID, StateEndedManual, terminatedAt)
	if err != nil {
		return nil, s.recordEndFailure(ctx, session.CorrelationID, session, ErrStoreUnavailable{Op: "terminate session", Err: err})
	}
	if !ok {
		// Another writer terminated first
		return nil, s.recordEndFailure(ctx, session.CorrelationID, session, ErrAlreadyTerminated)
	}

	sessionDuration := terminatedAt.Sub(session.CreatedAt)
	if err := s.sink.Record(ctx, audit.Event{
		Operation:     audit.OperationEnd,
		Success:       true,
		CorrelationID: session.CorrelationID,
		InputData: map[string]any{
			"admin_user_id":       session.AdminUserID.String(),
			"target_user_id":      session.TargetUserID.String(),
			"termination_type":    "manual",
			"session_duration_ms": sessionDuration.Milliseconds(),
		},
		Timestamp: terminatedAt,
	}); err != nil {
		slog.Error("Failed to record end audit event", "correlation_id", session.CorrelationID, "err", err)
		return nil, ErrAuditWrite{Err: err}
	}

	slog.Info("Impersonation session ended",
		"correlation_id", session.CorrelationID,
		"session_duration_ms", sessionDuration.Milliseconds())

	return &EndResult{
		Success:              true,
		OriginalSessionToken: session.OriginalSessionToken,
	}, nil
}

func (s *Service) recordEndFailure(ctx context.Context, correlationID string, session *Session, cause error) error {
	if correlationID == "" {
		if fresh, err := s.tokens.GenerateCorrelationID(); err == nil {
			correlationID = fresh
		}
	}
	input := map[string]any{}
	if session != nil {
		input["admin_user_id"] = session.AdminUserID.String()
		input["target_user_id"] = session.TargetUserID.String()
	}
	if err := s.sink.Record(ctx, audit.Event{
		Operation:     audit.OperationEnd,
		Success:       false,
		CorrelationID: correlationID,
		InputData:     input,
		ErrorMessage:  cause.Error(),
		Timestamp:     s.now(),
	}); err != nil {
		slog.Error("Failed to record end failure audit event", "err", err)
		return ErrAuditWrite{Err: err}
	}
	return cause
}

// GetImpersonationStatus reports whether the presented token belongs to a
// live impersonation session. This is a defensive read: any missing record,
// passed expiry, or referential gap collapses to a negative result, never an
// error. Expiry is derived from the clock, not the state flag, so a session
// the sweeper has not reached yet still reads as not impersonating.
func (s *Service) GetImpersonationStatus(ctx context.Context, sessionToken string) *Status {
	notImpersonating := &Status{IsImpersonating: false}

	session, err := s.sessions.GetByToken(ctx, sessionToken)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			slog.Warn("Failed to look up impersonation session for status", "err", err)
		}
		return notImpersonating
	}

	now := s.now()
	if !session.IsActive() || session.IsExpired(now) {
		return notImpersonating
	}

	adminUser, err := s.users.GetUser(ctx, session.AdminUserID)
	if err != nil {
		return notImpersonating
	}
	targetUser, err := s.users.GetUser(ctx, session.TargetUserID)
	if err != nil {
		return notImpersonating
	}

	timeRemaining := session.ExpiresAt.Sub(now)
	if timeRemaining < 0 {
		timeRemaining = 0
	}

	return &Status{
		IsImpersonating:    true,
		Admin:              userSummary(adminUser),
		Target:             userSummary(targetUser),
		ImpersonationToken: session.SessionToken,
		TimeRemainingMs:    timeRemaining.Milliseconds(),
		CorrelationID:      session.CorrelationID,
	}
}

func userSummary(user *directory.User) *UserSummary {
	return &UserSummary{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}

// SearchUsersForImpersonation returns non-administrator users whose name or
// email contains the search term, annotated with their organization name when
// one resolves. Read-only; no audit events are written.
func (s *Service) SearchUsersForImpersonation(ctx context.Context, adminCredential, searchTerm string, limit int) ([]SearchResult, error) {
	if _, err := s.authorizeAdmin(ctx, adminCredential); err != nil {
		return nil, err
	}

	users, err := s.users.FindNonAdminUsers(ctx)
	if err != nil {
		return nil, ErrStoreUnavailable{Op: "list users", Err: err}
	}

	term := strings.ToLower(searchTerm)
	results := make([]SearchResult, 0)
	for _, user := range users {
		if term != "" &&
			!strings.Contains(strings.ToLower(user.Name), term) &&
			!strings.Contains(strings.ToLower(user.Email), term) {
			continue
		}
		if limit > 0 && len(results) >= limit {
			break
		}

		var result SearchResult
		if err := copier.Copy(&result, &user); err != nil {
			return nil, fmt.Errorf("failed to map user: %w", err)
		}
		if user.OrganizationID != nil {
			if org, err := s.users.GetOrganization(ctx, *user.OrganizationID); err == nil {
				result.CompanyName = org.Name
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// EmergencyTerminateAllSessions is the global kill switch: it terminates every
// active session system-wide regardless of owner and records a single batched
// audit event carrying the count. Any administrator may invoke it.
func (s *Service) EmergencyTerminateAllSessions(ctx context.Context, adminCredential string) (*EmergencyResult, error) {
	correlationID, genErr := s.tokens.GenerateCorrelationID()
	if genErr != nil {
		return nil, fmt.Errorf("failed to generate correlation id: %w", genErr)
	}

	result, err := s.emergencyTerminate(ctx, adminCredential, correlationID)
	if err != nil {
		var auditErr ErrAuditWrite
		if errors.As(err, &auditErr) {
			return nil, err
		}
		if recErr := s.sink.Record(ctx, audit.Event{
			Operation:     audit.OperationEmergencyTerminate,
			Success:       false,
			CorrelationID: correlationID,
			ErrorMessage:  err.Error(),
			Timestamp:     s.now(),
		}); recErr != nil {
			slog.Error("Failed to record emergency_terminate failure audit event", "err", recErr)
			return nil, ErrAuditWrite{Err: recErr}
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) emergencyTerminate(ctx context.Context, adminCredential, correlationID string) (*EmergencyResult, error) {
	admin, err := s.authorizeAdmin(ctx, adminCredential)
	if err != nil {
		return nil, err
	}

	active, err := s.sessions.FindAllActive(ctx)
	if err != nil {
		return nil, ErrStoreUnavailable{Op: "list active sessions", Err: err}
	}

	terminatedAt := s.now()
	terminated := 0
	for _, session := range active {
		ok, err := s.sessions.Terminate(ctx, session.ID, StateEndedEmergency, terminatedAt)
		if err != nil {
			return nil, ErrStoreUnavailable{Op: "terminate session", Err: err}
		}
		if ok {
			terminated++
		}
	}

	if err := s.sink.Record(ctx, audit.Event{
		Operation:     audit.OperationEmergencyTerminate,
		Success:       true,
		CorrelationID: correlationID,
		InputData: map[string]any{
			"admin_user_id":       admin.UserID.String(),
			"sessions_terminated": terminated,
		},
		Timestamp: terminatedAt,
	}); err != nil {
		slog.Error("Failed to record emergency_terminate audit event", "correlation_id", correlationID, "err", err)
		return nil, ErrAuditWrite{Err: err}
	}

	slog.Warn("Emergency termination of all impersonation sessions",
		"admin_user_id", admin.UserID,
		"sessions_terminated", terminated,
		"correlation_id", correlationID)

	return &EmergencyResult{
		Success:            true,
		SessionsTerminated: terminated,
		CorrelationID:      correlationID,
	}, nil
}

// CleanupExpiredSessions transitions every expired, still-active session to
// the timed-out state and writes one timeout audit event per session. A
// session terminated by a concurrent manual end between the query and the
// update is skipped silently; losing that race is not an error.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (*CleanupResult, error) {
	now := s.now()
	expired, err := s.sessions.FindExpiredActive(ctx, now)
	if err != nil {
		return nil, ErrStoreUnavailable{Op: "list expired sessions", Err: err}
	}

	cleaned := 0
	for _, session := range expired {
		terminatedAt := s.now()
		ok, err := s.sessions.Terminate(ctx, session.ID, StateEndedTimeout, terminatedAt)
		if err != nil {
			return nil, ErrStoreUnavailable{Op: "terminate session", Err: err}
		}
		if !ok {
			continue
		}
		cleaned++

		sessionDuration := terminatedAt.Sub(session.CreatedAt)
		if err := s.sink.Record(ctx, audit.Event{
			Operation:     audit.OperationTimeout,
			Success:       true,
			CorrelationID: session.CorrelationID,
			InputData: map[string]any{
				"admin_user_id":       session.AdminUserID.String(),
				"target_user_id":      session.TargetUserID.String(),
				"termination_type":    "timeout",
				"session_duration_ms": sessionDuration.Milliseconds(),
			},
			Timestamp: terminatedAt,
		}); err != nil {
			slog.Error("Failed to record timeout audit event", "correlation_id", session.CorrelationID, "err", err)
			return nil, ErrAuditWrite{Err: err}
		}
	}

	if cleaned > 0 {
		slog.Info("Cleaned up expired impersonation sessions", "count", cleaned)
	}
	return &CleanupResult{ExpiredSessionsCleaned: cleaned}, nil
}
