package guestuser

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Verifier authenticates an identifier/password pair against a store.
// Mirrors the host framework's authentication backend contract; the guest
// verifier ignores the password entirely.
type Verifier interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (*User, error)
	Method() AuthMethod
}

// NameGenerator produces a candidate username. Generators never guarantee
// uniqueness; the lifecycle manager retries on store conflicts.
type NameGenerator func() string

// GuestRequest carries the request attributes that trigger guest creation.
// It travels into the GuestCreated event for downstream listeners.
type GuestRequest struct {
	PreferredUsername string
	Path              string
	UserAgent         string
}

// Credentials is the proof applied to a guest identity on conversion.
type Credentials struct {
	Username string
	Password string
}

// Clock lets tests pin time-dependent behavior.
type Clock func() time.Time

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] GUEST "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] GUEST "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] GUEST "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
