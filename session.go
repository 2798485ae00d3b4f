package guestuser

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims is the payload of the session token cookie. The method
// claim records which backend authenticated the session and feeds the
// classifier's fast path.
type SessionClaims struct {
	jwt.RegisteredClaims
	Method   string `json:"mth,omitempty"`
	Username string `json:"usr,omitempty"`
}

// UserUUID parses the subject claim.
func (c *SessionClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// AuthMethod maps the method claim onto the enum.
func (c *SessionClaims) AuthMethod() AuthMethod {
	switch AuthMethod(c.Method) {
	case AuthMethodGuest:
		return AuthMethodGuest
	case AuthMethodStandard:
		return AuthMethodStandard
	}
	return AuthMethodOther
}

func mintSessionToken(cfg *Config, user *User, method AuthMethod, now time.Time, duration time.Duration) (string, error) {
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			ID:        uuid.NewString(),
		},
		Method:   string(method),
		Username: user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.SigningKey))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "could not sign session token")
	}
	return signed, nil
}

func parseSessionToken(cfg *Config, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method", errors.CategoryAuth)
		}
		return []byte(cfg.SigningKey), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "unable to decode session").
			WithCode(errors.CodeUnauthorized)
	}
	if !token.Valid {
		return nil, errors.New("invalid session token", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}
	return claims, nil
}
