package impersonation

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions carrying no extra context
var (
	// ErrAuthenticationRequired is returned when the admin credential does not resolve
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrInsufficientPermissions is returned when the caller is not an administrator
	ErrInsufficientPermissions = errors.New("insufficient permissions: administrator role required")

	// ErrCannotImpersonateAdmin is returned when the target holds the administrator role
	ErrCannotImpersonateAdmin = errors.New("cannot impersonate another administrator")

	// ErrSessionNotFound is returned when no session matches the presented token
	ErrSessionNotFound = errors.New("impersonation session not found")

	// ErrAlreadyTerminated is returned when ending a session that is no longer active
	ErrAlreadyTerminated = errors.New("impersonation session already terminated")
)

// ErrTargetUserNotFound is returned when the target email resolves to no user
type ErrTargetUserNotFound struct {
	Email string
}

func (e ErrTargetUserNotFound) Error() string {
	return fmt.Sprintf("target user not found: %s", e.Email)
}

// ErrMaxConcurrentSessionsExceeded is returned when an admin already holds the
// maximum number of active impersonation sessions
type ErrMaxConcurrentSessionsExceeded struct {
	Limit int
}

func (e ErrMaxConcurrentSessionsExceeded) Error() string {
	return fmt.Sprintf("maximum concurrent impersonation sessions exceeded: limit is %d", e.Limit)
}

// ErrAuditWrite is returned when an audit record could not be durably written.
// An operation is not complete until its audit record is committed, so this
// error supersedes whatever outcome the operation itself had.
type ErrAuditWrite struct {
	Err error
}

func (e ErrAuditWrite) Error() string {
	return fmt.Sprintf("failed to write audit record: %v", e.Err)
}

func (e ErrAuditWrite) Unwrap() error {
	return e.Err
}

// ErrStoreUnavailable is returned when a repository operation fails for
// reasons other than a missing record
type ErrStoreUnavailable struct {
	Op  string
	Err error
}

func (e ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("session store unavailable during %s: %v", e.Op, e.Err)
}

func (e ErrStoreUnavailable) Unwrap() error {
	return e.Err
}
