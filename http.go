package guestuser

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
)

// GuestAuthenticator bridges the verifier chain and the HTTP layer: it logs
// guests in, restores users from the session cookie and exposes the standard
// login used right after a conversion.
type GuestAuthenticator struct {
	chain  *VerifierChain
	cfg    *Config
	repo   RepositoryManager
	Logger Logger
	now    Clock
}

type GuestAuthenticatorOption func(*GuestAuthenticator)

// WithAuthenticatorLogger overrides the default logger.
func WithAuthenticatorLogger(logger Logger) GuestAuthenticatorOption {
	return func(a *GuestAuthenticator) {
		if logger != nil {
			a.Logger = logger
		}
	}
}

// WithAuthenticatorClock pins token timestamps, for tests.
func WithAuthenticatorClock(clock Clock) GuestAuthenticatorOption {
	return func(a *GuestAuthenticator) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewGuestAuthenticator validates the chain ordering before returning; a
// missing or misordered guest verifier is a configuration error and should
// halt startup.
func NewGuestAuthenticator(chain *VerifierChain, cfg *Config, repo RepositoryManager, opts ...GuestAuthenticatorOption) (*GuestAuthenticator, error) {
	if err := CheckVerifierChain(chain, cfg); err != nil {
		return nil, err
	}

	a := &GuestAuthenticator{
		chain:  chain,
		cfg:    cfg,
		repo:   repo,
		Logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// LoginGuest establishes a just-created guest as the authenticated identity
// for the remainder of the request and sets the session cookie. The guest
// must authenticate through the chain; if it cannot, the wiring is broken
// and the error is fatal rather than a silent anonymous fallthrough.
func (a *GuestAuthenticator) LoginGuest(c router.Context, user *User) error {
	verified, method, err := a.chain.Verify(c.Context(), user.Username, "")
	if err != nil || method != AuthMethodGuest {
		a.Logger.Error("guest login invariant violated", "username", user.Username, "error", err)
		return ErrGuestLoginInvariant
	}

	token, err := mintSessionToken(a.cfg, verified, AuthMethodGuest, a.now(), a.cfg.MaxGuestAge())
	if err != nil {
		return err
	}
	a.setCookieToken(c, token, a.cfg.MaxGuestAge())

	if err := a.repo.Users().TrackSuccessfulLogin(c.Context(), verified); err != nil {
		a.Logger.Error("could not track guest login", "error", err)
	}

	c.SetContext(WithAuthMethod(WithUser(c.Context(), verified), AuthMethodGuest))
	return nil
}

// Login authenticates through the chain with full credentials, used by the
// conversion endpoint right after the new credentials were applied.
func (a *GuestAuthenticator) Login(c router.Context, identifier, password string) error {
	user, method, err := a.chain.Verify(c.Context(), identifier, password)
	if err != nil {
		a.Logger.Error("login error", "identifier", identifier, "error", err)
		return err
	}

	token, err := mintSessionToken(a.cfg, user, method, a.now(), a.cfg.SessionCookieAge)
	if err != nil {
		return err
	}
	a.setCookieToken(c, token, a.cfg.SessionCookieAge)

	if err := a.repo.Users().TrackSuccessfulLogin(c.Context(), user); err != nil {
		a.Logger.Error("could not track login", "error", err)
	}

	c.SetContext(WithAuthMethod(WithUser(c.Context(), user), method))
	return nil
}

// Logout clears the session cookie.
func (a *GuestAuthenticator) Logout(c router.Context) {
	a.cookieDel(c, a.cfg.CookieName)
}

// CurrentUser resolves the request's identity: the request context first,
// then the session cookie. An anonymous caller yields (nil,
// AuthMethodOther, nil); an unreadable or expired token is treated as
// anonymous, not as an error.
func (a *GuestAuthenticator) CurrentUser(c router.Context) (*User, AuthMethod, error) {
	if user, ok := UserFromContext(c.Context()); ok && !user.IsAnonymous() {
		return user, AuthMethodFromContext(c.Context()), nil
	}

	raw := c.Cookies(a.cfg.CookieName)
	if raw == "" {
		return nil, AuthMethodOther, nil
	}

	claims, err := parseSessionToken(a.cfg, raw)
	if err != nil {
		a.Logger.Debug("discarding unreadable session token", "error", err)
		return nil, AuthMethodOther, nil
	}

	id, err := claims.UserUUID()
	if err != nil {
		return nil, AuthMethodOther, nil
	}

	user, err := a.repo.Users().GetByUserID(c.Context(), id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// expired guest whose row was reclaimed
			a.Logger.Debug("session points at a reclaimed user", "username", claims.Username, "user_id", claims.Subject)
			return nil, AuthMethodOther, nil
		}
		return nil, AuthMethodOther, goerrors.Wrap(err, goerrors.CategoryInternal, "could not load session user")
	}

	method := claims.AuthMethod()
	c.SetContext(WithAuthMethod(WithUser(c.Context(), user), method))
	return user, method, nil
}

func (a *GuestAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.CookieName,
		Value:    val,
		Expires:  a.now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *GuestAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  a.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}
