// Package impersonation implements administrator impersonation sessions for
// the incident-reporting admin console: a system administrator may temporarily
// assume a non-administrator user's identity for support and debugging, under
// strict time, concurrency, and audit constraints.
//
// Sessions are bearer-token scoped, last exactly SessionDuration, are bounded
// to MaxConcurrentSessions active sessions per admin, and are never deleted:
// each one transitions exactly once from active to one of the terminal states
// (manual end, sweeper timeout, or emergency termination). Every lifecycle
// step writes an event to the audit sink, tagged with the session's
// correlation id; session tokens never appear in audit events or logs.
//
// The Service is stateless between calls. The count-then-insert sequence in
// StartImpersonation is not atomic against the repository, so truly
// concurrent start calls from one admin can transiently exceed the session
// bound; deployments needing a strict guarantee must enforce it at the
// storage layer.
package impersonation
