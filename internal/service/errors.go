package service

import "errors"

// Kind classifies a domain failure so the transport layer can map it
// to a status code without inspecting messages.
type Kind int

const (
	// KindUnauthorized covers bad or missing credentials and inactive
	// actors anywhere in the auth chain. Always carries the same
	// generic message so callers cannot enumerate which check failed.
	KindUnauthorized Kind = iota + 1
	// KindNotFound covers missing tenants, projects, invitations and
	// memberships. These identifiers are not secrets, so naming the
	// missing entity is acceptable.
	KindNotFound
	// KindBadRequest covers invalid state transitions and caller input
	// conflicts: duplicate registration, reused or expired invitations,
	// missing required fields.
	KindBadRequest
	// KindConflict covers uniqueness violations surfaced by the store.
	KindConflict
)

// Error is a typed domain failure raised by the services.
type Error struct {
	kind    Kind
	message string
}

func (e *Error) Error() string { return e.message }

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

// unauthorizedMessage is deliberately identical for every
// authentication failure: unknown user, wrong password, inactive user,
// membership, tenant or project.
const unauthorizedMessage = "invalid credentials"

// ErrUnauthorized returns a generic authentication failure.
func ErrUnauthorized() error {
	return &Error{kind: KindUnauthorized, message: unauthorizedMessage}
}

// ErrUnauthorizedMsg returns an authentication failure with an
// explicit message, for failures where the cause is not a secret
// (e.g. "Invalid API key").
func ErrUnauthorizedMsg(message string) error {
	return &Error{kind: KindUnauthorized, message: message}
}

// ErrNotFound reports a missing, non-secret entity.
func ErrNotFound(message string) error {
	return &Error{kind: KindNotFound, message: message}
}

// ErrBadRequest reports a caller input or state conflict.
func ErrBadRequest(message string) error {
	return &Error{kind: KindBadRequest, message: message}
}

// ErrConflict reports a uniqueness violation.
func ErrConflict(message string) error {
	return &Error{kind: KindConflict, message: message}
}

// KindOf extracts the failure classification, or 0 for non-domain errors.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind()
	}
	return 0
}
