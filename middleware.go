package guestuser

import (
	"net/url"
	"strings"

	"github.com/goliatone/go-router"
)

// Gate bundles the dependencies shared by the three access guards. Every
// guard is available in two functionally identical shapes: a
// router.MiddlewareFunc for route groups and a Wrap* form for a single
// handler.
type Gate struct {
	Manager *GuestManager
	Auth    *GuestAuthenticator
	Config  *Config
	Logger  Logger
}

func NewGate(manager *GuestManager, auth *GuestAuthenticator, cfg *Config) *Gate {
	return &Gate{
		Manager: manager,
		Auth:    auth,
		Config:  cfg,
		Logger:  defLogger{},
	}
}

// GateOption overrides per-route redirect targets.
type GateOption func(*gateOptions)

type gateOptions struct {
	anonymousURL  string
	registeredURL string
	loginURL      string
	convertURL    string
	redirectParam string
}

// WithAnonymousRedirect overrides where GuestRequired sends anonymous callers.
func WithAnonymousRedirect(target string) GateOption {
	return func(o *gateOptions) { o.anonymousURL = target }
}

// WithRegisteredRedirect overrides where GuestRequired sends registered callers.
func WithRegisteredRedirect(target string) GateOption {
	return func(o *gateOptions) { o.registeredURL = target }
}

// WithLoginRedirect overrides where RegularRequired sends anonymous callers.
func WithLoginRedirect(target string) GateOption {
	return func(o *gateOptions) { o.loginURL = target }
}

// WithConvertRedirect overrides where RegularRequired sends guests.
func WithConvertRedirect(target string) GateOption {
	return func(o *gateOptions) { o.convertURL = target }
}

// WithRedirectParam overrides the "return to this page" parameter name.
func WithRedirectParam(name string) GateOption {
	return func(o *gateOptions) { o.redirectParam = name }
}

// AllowGuestUser lets anonymous visitors through by silently creating a
// guest identity and logging it in for the remainder of the request.
// Authenticated callers, blocked crawlers and a disabled feature flag all
// make this a pass-through.
func (g *Gate) AllowGuestUser() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return g.WrapAllowGuestUser(next)
	}
}

// WrapAllowGuestUser is the single-handler form of AllowGuestUser.
func (g *Gate) WrapAllowGuestUser(next router.HandlerFunc) router.HandlerFunc {
	return func(c router.Context) error {
		user, _, err := g.Auth.CurrentUser(c)
		if err != nil {
			return err
		}
		if user != nil {
			return next(c)
		}

		if !g.Config.Enabled {
			return next(c)
		}

		userAgent := c.Header("User-Agent")
		if g.Config.BlockedAgent(userAgent) {
			g.Logger.Debug("blocked user agent, staying anonymous", "user_agent", userAgent)
			return next(c)
		}

		guest, err := g.Manager.CreateGuestUser(c.Context(), &GuestRequest{
			Path:      c.Path(),
			UserAgent: userAgent,
		})
		if err != nil {
			return err
		}

		// A login failure here means the guest verifier is miswired; fail
		// loudly instead of leaving the caller unexpectedly anonymous.
		if err := g.Auth.LoginGuest(c, guest); err != nil {
			return err
		}

		return next(c)
	}
}

// GuestRequired only admits temporary guests. Anonymous callers go to the
// anonymous target, registered users to the registered target. There is no
// "next" handling: a registered user can never become a guest again.
func (g *Gate) GuestRequired(opts ...GateOption) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return g.WrapGuestRequired(next, opts...)
	}
}

// WrapGuestRequired is the single-handler form of GuestRequired.
func (g *Gate) WrapGuestRequired(next router.HandlerFunc, opts ...GateOption) router.HandlerFunc {
	options := applyGateOptions(opts)
	return func(c router.Context) error {
		user, _, err := g.Auth.CurrentUser(c)
		if err != nil {
			return err
		}

		isGuest, err := g.Manager.IsGuest(c.Context(), user)
		if err != nil {
			return err
		}
		if isGuest {
			return next(c)
		}

		target := options.anonymousURL
		if user != nil {
			target = options.registeredURL
			if target == "" {
				target = g.Config.RegisteredRedirect()
			}
		} else if target == "" {
			target = g.Config.AnonymousRedirect()
		}

		return c.Redirect(target, router.StatusSeeOther)
	}
}

// RegularRequired only admits authenticated non-guests. Anonymous callers
// go to the login target, guests to the conversion target; both redirects
// carry a "return to this page" parameter when the target is same-origin.
func (g *Gate) RegularRequired(opts ...GateOption) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return g.WrapRegularRequired(next, opts...)
	}
}

// WrapRegularRequired is the single-handler form of RegularRequired.
func (g *Gate) WrapRegularRequired(next router.HandlerFunc, opts ...GateOption) router.HandlerFunc {
	options := applyGateOptions(opts)
	return func(c router.Context) error {
		user, _, err := g.Auth.CurrentUser(c)
		if err != nil {
			return err
		}

		if user != nil {
			isGuest, err := g.Manager.IsGuest(c.Context(), user)
			if err != nil {
				return err
			}
			if !isGuest {
				return next(c)
			}
		}

		target := options.loginURL
		if user != nil {
			target = options.convertURL
			if target == "" {
				target = g.Config.ConvertURL
			}
		} else if target == "" {
			target = g.Config.LoginURL
		}

		param := options.redirectParam
		if param == "" {
			param = g.Config.RedirectParamName
		}

		target = RedirectWithNext(target, c.Path(), requestHost(c), requestScheme(c), param)
		return c.Redirect(target, router.StatusSeeOther)
	}
}

func applyGateOptions(opts []GateOption) gateOptions {
	options := gateOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// RedirectWithNext appends the current path as a query parameter to the
// redirect target, but only when the target resolves to the same
// scheme+host as the request. A cross-origin target is returned untouched
// so the parameter can never leak through an open redirect.
func RedirectWithNext(target, currentPath, host, scheme, param string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}

	if u.IsAbs() && (u.Scheme != scheme || !strings.EqualFold(u.Host, host)) {
		return target
	}

	q := u.Query()
	q.Set(param, currentPath)
	u.RawQuery = q.Encode()
	return u.String()
}

// SafeNextURL validates a caller-supplied "next" target. Only relative
// paths and absolute URLs pointing at the request host (or an explicitly
// allowed host) on the request scheme survive; everything else collapses to
// the empty string.
func SafeNextURL(target, host, scheme string, allowedHosts []string) string {
	if target == "" {
		return ""
	}

	// a scheme-relative URL would escape the host check below
	if strings.HasPrefix(target, "//") {
		return ""
	}

	u, err := url.Parse(target)
	if err != nil {
		return ""
	}

	if !u.IsAbs() {
		if strings.HasPrefix(u.Path, "/") {
			return target
		}
		return ""
	}

	if u.Scheme != scheme && u.Scheme != "https" {
		return ""
	}

	if strings.EqualFold(u.Host, host) {
		return target
	}
	for _, allowed := range allowedHosts {
		if strings.EqualFold(u.Host, allowed) {
			return target
		}
	}
	return ""
}

func requestHost(c router.Context) string {
	return c.Header("Host")
}

// requestScheme prefers the proxy-forwarded scheme headers, then falls
// back to the TLS state of the underlying request when the adapter
// exposes it.
func requestScheme(c router.Context) string {
	for _, header := range []string{"X-Forwarded-Proto", "X-Scheme"} {
		value := strings.TrimSpace(c.Header(header))
		if value == "" {
			continue
		}
		if idx := strings.Index(value, ","); idx >= 0 {
			value = strings.TrimSpace(value[:idx])
		}
		value = strings.ToLower(value)
		if value == "http" || value == "https" {
			return value
		}
	}

	if httpCtx, ok := c.(router.HTTPContext); ok {
		if req := httpCtx.Request(); req != nil && req.TLS != nil {
			return "https"
		}
	}
	return "http"
}
