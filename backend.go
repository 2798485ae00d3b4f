package guestuser

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// GuestVerifier authenticates with a username only. It succeeds iff the
// identity exists and is currently classified as a guest; the password is
// ignored. It must be registered last in the chain so it never shadows
// password authentication for non-guests.
type GuestVerifier struct {
	repo RepositoryManager
}

var _ Verifier = (*GuestVerifier)(nil)

func NewGuestVerifier(repo RepositoryManager) *GuestVerifier {
	return &GuestVerifier{repo: repo}
}

func (v *GuestVerifier) Method() AuthMethod {
	return AuthMethodGuest
}

func (v *GuestVerifier) VerifyIdentity(ctx context.Context, identifier, _ string) (*User, error) {
	user, err := v.repo.Users().GetByUsername(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	isGuest, err := v.repo.Guests().ExistsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !isGuest {
		return nil, ErrIdentityNotFound
	}

	return user, nil
}

// PasswordVerifier is the standard backend: username plus bcrypt-checked
// password. Guests never pass it, their credential is empty.
type PasswordVerifier struct {
	repo RepositoryManager
}

var _ Verifier = (*PasswordVerifier)(nil)

func NewPasswordVerifier(repo RepositoryManager) *PasswordVerifier {
	return &PasswordVerifier{repo: repo}
}

func (v *PasswordVerifier) Method() AuthMethod {
	return AuthMethodStandard
}

func (v *PasswordVerifier) VerifyIdentity(ctx context.Context, identifier, password string) (*User, error) {
	user, err := v.repo.Users().GetByUsername(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	if !user.HasUsablePassword() {
		return nil, ErrIdentityNotFound
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, err
	}

	return user, nil
}

// VerifierChain tries each verifier in registration order; the first
// success wins, mirroring the host framework's backend ordering semantics.
type VerifierChain struct {
	verifiers []Verifier
}

func NewVerifierChain(verifiers ...Verifier) *VerifierChain {
	return &VerifierChain{verifiers: verifiers}
}

// Verifiers returns the chain entries in order.
func (c *VerifierChain) Verifiers() []Verifier {
	return c.verifiers
}

// Verify walks the chain and returns the user plus the method of the
// verifier that accepted it.
func (c *VerifierChain) Verify(ctx context.Context, identifier, password string) (*User, AuthMethod, error) {
	var lastErr error = ErrIdentityNotFound
	for _, verifier := range c.verifiers {
		user, err := verifier.VerifyIdentity(ctx, identifier, password)
		if err == nil {
			return user, verifier.Method(), nil
		}
		lastErr = err

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			continue
		}
		// unexpected store failure, do not mask it by falling through
		return nil, AuthMethodOther, err
	}
	return nil, AuthMethodOther, lastErr
}
