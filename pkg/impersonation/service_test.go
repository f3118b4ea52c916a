package impersonation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelog/impersonation/pkg/audit"
	"github.com/carelog/impersonation/pkg/directory"
)

// fakeClock is a controllable time source for expiry tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingSink simulates an unavailable audit store
type failingSink struct{}

func (failingSink) Record(ctx context.Context, event audit.Event) error {
	return errors.New("audit store unavailable")
}

type testEnv struct {
	sessions *InMemorySessionRepository
	dir      *directory.InMemoryRepository
	auth     *directory.StaticAuthorizer
	sink     *audit.InMemorySink
	clock    *fakeClock
	service  *Service

	admin       directory.User
	secondAdmin directory.User
	target      directory.User
	org         directory.Organization
}

const (
	adminCred       = "admin-credential"
	secondAdminCred = "second-admin-credential"
	reporterCred    = "reporter-credential"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		sessions: NewInMemorySessionRepository(),
		dir:      directory.NewInMemoryRepository(),
		sink:     audit.NewInMemorySink(),
		clock:    newFakeClock(),
	}
	env.auth = directory.NewStaticAuthorizer(env.dir)

	env.org = env.dir.AddOrganization(directory.Organization{Name: "Mercy General Hospital"})
	orgID := env.org.ID

	env.admin = env.dir.AddUser(directory.User{
		Email: "admin@example.com", Name: "System Administrator", Role: directory.RoleAdmin,
	})
	env.secondAdmin = env.dir.AddUser(directory.User{
		Email: "admin2@example.com", Name: "Second Administrator", Role: directory.RoleAdmin,
	})
	env.target = env.dir.AddUser(directory.User{
		Email: "jody.ward@example.com", Name: "Jody Ward", Role: directory.RoleCoordinator, OrganizationID: &orgID,
	})
	reporter := env.dir.AddUser(directory.User{
		Email: "sam.okafor@example.com", Name: "Sam Okafor", Role: directory.RoleReporter, OrganizationID: &orgID,
	})
	env.dir.AddUser(directory.User{
		Email: "lee.reyes@example.com", Name: "Lee Reyes", Role: directory.RoleReadonly,
	})

	env.auth.Register(adminCred, env.admin.ID)
	env.auth.Register(secondAdminCred, env.secondAdmin.ID)
	env.auth.Register(reporterCred, reporter.ID)

	env.service = NewService(env.sessions, env.dir, env.auth, env.sink, WithClock(env.clock.Now))
	return env
}

func TestStartImpersonation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support ticket 4312")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ImpersonationToken)
	assert.NotEmpty(t, result.CorrelationID)
	assert.Equal(t, env.clock.Now().Add(SessionDuration), result.ExpiresAt)

	// Session is persisted with the fixed lifetime
	session, err := env.sessions.GetByToken(ctx, result.ImpersonationToken)
	require.NoError(t, err)
	assert.Equal(t, StateActive, session.State)
	assert.Equal(t, env.admin.ID, session.AdminUserID)
	assert.Equal(t, env.target.ID, session.TargetUserID)
	assert.Equal(t, adminCred, session.OriginalSessionToken)
	assert.Equal(t, SessionDuration, session.ExpiresAt.Sub(session.CreatedAt))

	// A start event is recorded under the session's correlation id
	events := env.sink.EventsByCorrelationID(result.CorrelationID)
	require.Len(t, events, 1)
	assert.Equal(t, audit.OperationStart, events[0].Operation)
	assert.True(t, events[0].Success)
	assert.Equal(t, "jody.ward@example.com", events[0].InputData["target_email"])
	assert.Equal(t, "support ticket 4312", events[0].InputData["reason"])
}

func TestStartImpersonationAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.StartImpersonation(context.Background(), "unknown-credential", "jody.ward@example.com", "support")
	assert.ErrorIs(t, err, ErrAuthenticationRequired)

	// The failure is still audited
	events := env.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OperationStartFailed, events[0].Operation)
	assert.False(t, events[0].Success)
	assert.NotEmpty(t, events[0].CorrelationID)
	assert.Contains(t, events[0].ErrorMessage, "authentication required")
}

func TestStartImpersonationInsufficientPermissions(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.StartImpersonation(context.Background(), reporterCred, "jody.ward@example.com", "support")
	assert.ErrorIs(t, err, ErrInsufficientPermissions)

	events := env.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OperationStartFailed, events[0].Operation)
}

func TestStartImpersonationTargetNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.StartImpersonation(context.Background(), adminCred, "nobody@example.com", "support")

	var notFound ErrTargetUserNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nobody@example.com", notFound.Email)
}

func TestStartImpersonationCannotImpersonateAdmin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.StartImpersonation(context.Background(), adminCred, "admin2@example.com", "any reason at all")
	assert.ErrorIs(t, err, ErrCannotImpersonateAdmin)

	events := env.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OperationStartFailed, events[0].Operation)
	assert.Contains(t, events[0].ErrorMessage, "cannot impersonate")
}

func TestStartImpersonationMaxConcurrentSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < MaxConcurrentSessions; i++ {
		_, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
		require.NoError(t, err)
	}

	_, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")

	var maxErr ErrMaxConcurrentSessionsExceeded
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, MaxConcurrentSessions, maxErr.Limit)
	assert.Contains(t, err.Error(), "3")

	// A different admin is not affected by the first admin's sessions
	_, err = env.service.StartImpersonation(ctx, secondAdminCred, "jody.ward@example.com", "support")
	assert.NoError(t, err)
}

func TestStartImpersonationLimitFreedByExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < MaxConcurrentSessions; i++ {
		_, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
		require.NoError(t, err)
	}

	// Once the existing sessions pass expiry they stop counting toward the
	// bound even before the sweeper runs
	env.clock.Advance(SessionDuration + time.Second)

	_, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
	assert.NoError(t, err)
}

func TestStartImpersonationAuditWriteFailure(t *testing.T) {
	env := newTestEnv(t)
	service := NewService(env.sessions, env.dir, env.auth, failingSink{}, WithClock(env.clock.Now))

	_, err := service.StartImpersonation(context.Background(), adminCred, "jody.ward@example.com", "support")

	var auditErr ErrAuditWrite
	assert.ErrorAs(t, err, &auditErr)
}

func TestEndImpersonation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
	require.NoError(t, err)

	env.clock.Advance(5 * time.Minute)

	result, err := env.service.EndImpersonation(ctx, started.ImpersonationToken)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, adminCred, result.OriginalSessionToken)

	session, err := env.sessions.GetByToken(ctx, started.ImpersonationToken)
	require.NoError(t, err)
	assert.Equal(t, StateEndedManual, session.State)
	require.NotNil(t, session.TerminatedAt)

	events := env.sink.EventsByCorrelationID(started.CorrelationID)
	require.Len(t, events, 2)
	assert.Equal(t, audit.OperationEnd, events[1].Operation)
	assert.Equal(t, "manual", events[1].InputData["termination_type"])
	assert.Equal(t, (5 * time.Minute).Milliseconds(), events[1].InputData["session_duration_ms"])
}

func TestEndImpersonationAlreadyTerminated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
	require.NoError(t, err)

	_, err = env.service.EndImpersonation(ctx, started.ImpersonationToken)
	require.NoError(t, err)

	_, err = env.service.EndImpersonation(ctx, started.ImpersonationToken)
	assert.ErrorIs(t, err, ErrAlreadyTerminated)

	// The second end performed no further state change
	session, err := env.sessions.GetByToken(ctx, started.ImpersonationToken)
	require.NoError(t, err)
	assert.Equal(t, StateEndedManual, session.State)

	// Both the success and the failed attempt are audited
	events := env.sink.EventsByCorrelationID(started.CorrelationID)
	require.Len(t, events, 3)
	assert.False(t, events[2].Success)
	assert.Contains(t, events[2].ErrorMessage, "already terminated")
}

func TestEndImpersonationSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.EndImpersonation(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetImpersonationStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)

	status := env.service.GetImpersonationStatus(ctx, started.ImpersonationToken)
	require.True(t, status.IsImpersonating)
	assert.Equal(t, env.admin.ID, status.Admin.ID)
	assert.Equal(t, env.target.ID, status.Target.ID)
	assert.Equal(t, "jody.ward@example.com", status.Target.Email)
	assert.Equal(t, started.ImpersonationToken, status.ImpersonationToken)
	assert.Equal(t, (20 * time.Minute).Milliseconds(), status.TimeRemainingMs)
	assert.Equal(t, started.CorrelationID, status.CorrelationID)
}

func TestGetImpersonationStatusUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	status := env.service.GetImpersonationStatus(context.Background(), "no-such-token")
	assert.False(t, status.IsImpersonating)
	assert.Nil(t, status.Admin)
	assert.Nil(t, status.Target)
}

func TestGetImpersonationStatusExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
	require.NoError(t, err)

	env.clock.Advance(SessionDuration + time.Millisecond)

	// The sweeper has not run: the record still says active, but expiry is
	// derived from the clock
	session, err := env.sessions.GetByToken(ctx, started.ImpersonationToken)
	require.NoError(t, err)
	require.Equal(t, StateActive, session.State)

	status := env.service.GetImpersonationStatus(ctx, started.ImpersonationToken)
	assert.False(t, status.IsImpersonating)
}

func TestGetImpersonationStatusReferentialGap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	// Session referencing a target that no longer exists in the directory
	session, err := env.sessions.Create(ctx, CreateSessionParams{
		AdminUserID:          env.admin.ID,
		TargetUserID:         uuid.New(),
		SessionToken:         "orphaned-token",
		OriginalSessionToken: adminCred,
		Reason:               "support",
		CorrelationID:        "orphaned-correlation",
		CreatedAt:            now,
		ExpiresAt:            now.Add(SessionDuration),
	})
	require.NoError(t, err)
	require.True(t, session.IsActive())

	status := env.service.GetImpersonationStatus(ctx, "orphaned-token")
	assert.False(t, status.IsImpersonating)
}

func TestSearchUsersForImpersonation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	results, err := env.service.SearchUsersForImpersonation(ctx, adminCred, "jo", 10)
	require.NoError(t, err)

	// "jo" matches Jody Ward only; administrators are never candidates
	require.Len(t, results, 1)
	assert.Equal(t, "jody.ward@example.com", results[0].Email)
	assert.Equal(t, directory.RoleCoordinator, results[0].Role)
	assert.Equal(t, "Mercy General Hospital", results[0].CompanyName)
}

func TestSearchUsersForImpersonationEmptyTermAndLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	results, err := env.service.SearchUsersForImpersonation(ctx, adminCred, "", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = env.service.SearchUsersForImpersonation(ctx, adminCred, "", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for _, result := range results {
		assert.False(t, result.Role.IsAdmin())
	}
}

func TestSearchUsersForImpersonationAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.SearchUsersForImpersonation(ctx, "unknown-credential", "jo", 10)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)

	_, err = env.service.SearchUsersForImpersonation(ctx, reporterCred, "jo", 10)
	assert.ErrorIs(t, err, ErrInsufficientPermissions)
}

func TestEmergencyTerminateAllSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
	require.NoError(t, err)
	second, err := env.service.StartImpersonation(ctx, secondAdminCred, "sam.okafor@example.com", "support")
	require.NoError(t, err)

	result, err := env.service.EmergencyTerminateAllSessions(ctx, adminCred)
	require.NoError(t, err)
	assert.True(t, result.Success)
	// Sessions owned by every admin are terminated, not only the caller's
	assert.Equal(t, 2, result.SessionsTerminated)
	assert.NotEmpty(t, result.CorrelationID)
	assert.NotEqual(t, first.CorrelationID, result.CorrelationID)

	for _, token := range []string{first.ImpersonationToken, second.ImpersonationToken} {
		session, err := env.sessions.GetByToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, StateEndedEmergency, session.State)
	}

	// One batched event, not one per session
	events := env.sink.EventsByCorrelationID(result.CorrelationID)
	require.Len(t, events, 1)
	assert.Equal(t, audit.OperationEmergencyTerminate, events[0].Operation)
	assert.Equal(t, 2, events[0].InputData["sessions_terminated"])
}

func TestEmergencyTerminateRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.EmergencyTerminateAllSessions(context.Background(), reporterCred)
	assert.ErrorIs(t, err, ErrInsufficientPermissions)

	events := env.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OperationEmergencyTerminate, events[0].Operation)
	assert.False(t, events[0].Success)
}

func TestCleanupExpiredSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
	require.NoError(t, err)

	env.clock.Advance(SessionDuration + time.Millisecond)

	result, err := env.service.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExpiredSessionsCleaned)

	session, err := env.sessions.GetByToken(ctx, started.ImpersonationToken)
	require.NoError(t, err)
	assert.Equal(t, StateEndedTimeout, session.State)

	events := env.sink.EventsByCorrelationID(started.CorrelationID)
	require.Len(t, events, 2)
	assert.Equal(t, audit.OperationTimeout, events[1].Operation)
	assert.Equal(t, (SessionDuration + time.Millisecond).Milliseconds(), events[1].InputData["session_duration_ms"])

	// A second sweep with no new expirations cleans nothing
	result, err = env.service.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExpiredSessionsCleaned)
}

func TestCleanupSkipsManuallyEndedSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	started, err := env.service.StartImpersonation(ctx, adminCred, "jody.ward@example.com", "support")
	require.NoError(t, err)

	env.clock.Advance(SessionDuration + time.Second)

	// A manual end lands before the sweep reaches the record
	_, err = env.service.EndImpersonation(ctx, started.ImpersonationToken)
	require.NoError(t, err)

	result, err := env.service.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExpiredSessionsCleaned)

	session, err := env.sessions.GetByToken(ctx, started.ImpersonationToken)
	require.NoError(t, err)
	assert.Equal(t, StateEndedManual, session.State)
}
