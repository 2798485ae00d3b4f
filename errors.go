package guestuser

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeNotGuest          = "guest_user_not_guest"
	TextCodeDisabled          = "guest_user_disabled"
	TextCodeUsernameTaken     = "guest_user_username_taken"
	TextCodeUsernameExhausted = "guest_user_username_exhausted"
	TextCodeVerifierMissing   = "guest_user_verifier_missing"
	TextCodeVerifierLast      = "guest_user_verifier_not_last"
	TextCodeLoginInvariant    = "guest_user_login_invariant"
	TextCodeUnknownGenerator  = "guest_user_unknown_generator"
	TextCodeUnknownModel      = "guest_user_unknown_model"
)

// ErrNotGuest is returned when trying to convert an identity that does not
// carry a guest marker. Callers usually treat it as "already converted".
var ErrNotGuest = errors.New("cannot convert a non guest user", errors.CategoryConflict).
	WithTextCode(TextCodeNotGuest).
	WithCode(errors.CodeConflict)

// ErrGuestsDisabled is returned when guest creation is requested while the
// feature is disabled in the configuration.
var ErrGuestsDisabled = errors.New("guest users are disabled", errors.CategoryAuth).
	WithTextCode(TextCodeDisabled).
	WithCode(errors.CodeForbidden)

// ErrUsernameTaken is returned by Convert when the requested permanent
// username already belongs to another identity. The conversion endpoint
// surfaces it as form validation feedback.
var ErrUsernameTaken = errors.New("username is already taken", errors.CategoryValidation).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(errors.CodeConflict)

// ErrUsernamesExhausted is returned when guest creation keeps colliding after
// the configured number of attempts. This indicates a capacity or generator
// configuration problem, not a transient condition.
var ErrUsernamesExhausted = errors.New("could not allocate a unique guest username", errors.CategoryOperation).
	WithTextCode(TextCodeUsernameExhausted)

// ErrVerifierMissing is a configuration error: the guest identity verifier is
// not registered in the verifier chain while guest users are enabled.
var ErrVerifierMissing = errors.New("guest verifier is not registered in the chain", errors.CategoryOperation).
	WithTextCode(TextCodeVerifierMissing)

// ErrVerifierNotLast is a configuration error: the guest verifier must be the
// last entry in the chain so it never shadows password authentication.
var ErrVerifierNotLast = errors.New("guest verifier must be the last entry in the chain", errors.CategoryOperation).
	WithTextCode(TextCodeVerifierLast)

// ErrGuestLoginInvariant indicates that a freshly created guest could not be
// authenticated through the verifier chain. This is fatal; proceeding would
// leave the request anonymous after a guest row was created.
var ErrGuestLoginInvariant = errors.New("guest verifier failed to authenticate a newly created guest", errors.CategoryInternal).
	WithTextCode(TextCodeLoginInvariant)

// ErrIdentityNotFound is the error verifiers return for unknown identities.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when password verification fails.
var ErrMismatchedHashAndPassword = errors.New("mismatched password", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// IsNotGuest reports whether err is (or wraps) ErrNotGuest.
func IsNotGuest(err error) bool {
	return hasTextCode(err, TextCodeNotGuest)
}

// IsUsernameTaken reports whether err is (or wraps) ErrUsernameTaken.
func IsUsernameTaken(err error) bool {
	return hasTextCode(err, TextCodeUsernameTaken)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsUniqueViolation detects a uniqueness constraint violation surfaced by the
// store. Covers the sqlite and postgres drivers used with bun.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
