package domain

import "time"

// AuthEventKind names what happened to an identity.
type AuthEventKind string

const (
	EventRegistered      AuthEventKind = "registered"
	EventLoginSucceeded  AuthEventKind = "login_succeeded"
	EventLoginFailed     AuthEventKind = "login_failed"
	EventPasswordChanged AuthEventKind = "password_changed"
	EventRoleChanged     AuthEventKind = "role_changed"
	EventProfileUpdated  AuthEventKind = "profile_updated"
)

// AuthEvent is an internal audit record. Reason may carry detail that is
// never returned to callers (e.g. "unknown_user" vs "bad_password").
type AuthEvent struct {
	Kind    AuthEventKind
	Subject string // identity id, or the submitted login name when unresolved
	Actor   string // acting identity id for admin operations
	Reason  string
	At      time.Time
}
