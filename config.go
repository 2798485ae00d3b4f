package guestuser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultBlockedUserAgents lists crawlers that never get a guest identity.
// Entries are regular expression fragments joined into a single
// case-insensitive alternation.
var DefaultBlockedUserAgents = []string{
	"Googlebot",
	"Mediapartners-Google",
	"Bingbot",
	"Slurp",
	"DuckDuckBot",
	"Baiduspider",
	"Yandex(Mobile)?Bot",
	"Sogou",
	"Exabot",
	"facebot",
	"facebookexternalhit",
	"ia_archiver",
}

// DefaultUsernameMaxLength matches the host user store's username column.
const DefaultUsernameMaxLength = 150

// DefaultSessionCookieAge is two weeks, the session lifetime MaxAge falls
// back to when not set explicitly.
const DefaultSessionCookieAge = 14 * 24 * time.Hour

// Config holds all guest user options. It is constructed once at process
// start and passed into every component; nothing reads ambient settings.
type Config struct {
	// Enabled toggles guest creation. The AllowGuestUser gate becomes a
	// pass-through when false.
	Enabled bool

	// MaxAge is the maximum age of a guest identity before it is eligible
	// for reclamation. Falls back to SessionCookieAge when zero.
	MaxAge time.Duration

	// SessionCookieAge is the host session lifetime, used as the MaxAge
	// fallback and as the guest session cookie duration.
	SessionCookieAge time.Duration

	// NameGenerator selects the username strategy by registry key.
	// Built-ins: "uuid" (default), "numbered", "friendly".
	NameGenerator string

	// NamePrefix is used by the numbered generator.
	NamePrefix string

	// NameSuffixDigits is the numeric suffix width of the numbered generator.
	NameSuffixDigits int

	// UsernameMaxLength caps generated usernames to the store column width.
	UsernameMaxLength int

	// BlockedUserAgents are regexp fragments; a matching caller never
	// triggers guest creation. This is a crawler heuristic, not a security
	// boundary.
	BlockedUserAgents []string

	// ConvertPrefillUsername prefills the guest's generated username in the
	// conversion form.
	ConvertPrefillUsername bool

	// GuestModel selects a registered guest marker repository constructor.
	// Empty uses the built-in Guest model.
	GuestModel string

	LoginURL         string
	LoginRedirectURL string

	// RequiredAnonRedirect is where the GuestRequired gate sends anonymous
	// callers. Falls back to LoginURL.
	RequiredAnonRedirect string

	// RequiredUserRedirect is where the GuestRequired gate sends registered
	// callers. Falls back to LoginRedirectURL.
	RequiredUserRedirect string

	// ConvertURL is where the RegularRequired gate sends guests.
	ConvertURL string

	// ConvertSuccessURL is the default redirect after a successful
	// conversion, when no safe "next" was carried.
	ConvertSuccessURL string

	// RedirectParamName is the "return here afterward" query parameter.
	RedirectParamName string

	// AllowedHosts are additional hosts trusted in "next" redirect targets,
	// on top of the current request host.
	AllowedHosts []string

	// SigningKey signs the guest session token.
	SigningKey string

	// CookieName holds the guest session token cookie.
	CookieName string

	// Issuer for minted session tokens.
	Issuer string

	blockedAgents *regexp.Regexp
	generate      NameGenerator
}

// NewConfig returns a Config with the package defaults applied.
func NewConfig() *Config {
	cfg := &Config{Enabled: true}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.SessionCookieAge <= 0 {
		c.SessionCookieAge = DefaultSessionCookieAge
	}
	if c.NameGenerator == "" {
		c.NameGenerator = GeneratorUUID
	}
	if c.NamePrefix == "" {
		c.NamePrefix = "Guest"
	}
	if c.NameSuffixDigits <= 0 {
		c.NameSuffixDigits = 4
	}
	if c.UsernameMaxLength <= 0 {
		c.UsernameMaxLength = DefaultUsernameMaxLength
	}
	if c.BlockedUserAgents == nil {
		c.BlockedUserAgents = DefaultBlockedUserAgents
	}
	if c.LoginURL == "" {
		c.LoginURL = "/login"
	}
	if c.LoginRedirectURL == "" {
		c.LoginRedirectURL = "/"
	}
	if c.ConvertURL == "" {
		c.ConvertURL = "/convert"
	}
	if c.ConvertSuccessURL == "" {
		c.ConvertSuccessURL = "/convert/success"
	}
	if c.RedirectParamName == "" {
		c.RedirectParamName = "next"
	}
	if c.CookieName == "" {
		c.CookieName = "guest_session"
	}
	if c.Issuer == "" {
		c.Issuer = "guest-user"
	}
}

// Validate normalizes defaults, compiles the blocked agent pattern and
// resolves the username generator. Call once at startup before handing the
// config to any component.
func (c *Config) Validate() error {
	c.setDefaults()

	if len(c.BlockedUserAgents) > 0 {
		expr := fmt.Sprintf("(?i)(%s)", strings.Join(c.BlockedUserAgents, ")|("))
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("invalid blocked user agent pattern: %w", err)
		}
		c.blockedAgents = re
	}

	gen, err := c.resolveGenerator()
	if err != nil {
		return err
	}
	c.generate = gen

	return nil
}

func (c *Config) resolveGenerator() (NameGenerator, error) {
	switch c.NameGenerator {
	case GeneratorUUID:
		return UUIDNameGenerator(c.UsernameMaxLength), nil
	case GeneratorNumbered:
		return NumberedNameGenerator(c.NamePrefix, c.NameSuffixDigits), nil
	case GeneratorFriendly:
		return FriendlyNameGenerator(nil, nil), nil
	}
	return ResolveNameGenerator(c.NameGenerator)
}

// GenerateUsername produces a candidate username with the configured
// strategy. Validate must have been called.
func (c *Config) GenerateUsername() string {
	if c.generate == nil {
		return UUIDNameGenerator(c.UsernameMaxLength)()
	}
	return c.generate()
}

// MaxGuestAge resolves the effective maximum guest age.
func (c *Config) MaxGuestAge() time.Duration {
	if c.MaxAge > 0 {
		return c.MaxAge
	}
	return c.SessionCookieAge
}

// BlockedAgent reports whether the given user agent string matches the
// blocked pattern.
func (c *Config) BlockedAgent(userAgent string) bool {
	if c.blockedAgents == nil || userAgent == "" {
		return false
	}
	return c.blockedAgents.MatchString(userAgent)
}

// AnonymousRedirect is the GuestRequired target for anonymous callers.
func (c *Config) AnonymousRedirect() string {
	if c.RequiredAnonRedirect != "" {
		return c.RequiredAnonRedirect
	}
	return c.LoginURL
}

// RegisteredRedirect is the GuestRequired target for registered callers.
func (c *Config) RegisteredRedirect() string {
	if c.RequiredUserRedirect != "" {
		return c.RequiredUserRedirect
	}
	return c.LoginRedirectURL
}
