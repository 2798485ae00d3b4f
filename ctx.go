package guestuser

import "context"

// AuthMethod identifies which authentication backend established the current
// request's identity. The guest value is the classifier's fast path: it lets
// IsGuest skip the marker query right after a guest login.
type AuthMethod string

const (
	// AuthMethodGuest means the username-only guest verifier authenticated
	// the request.
	AuthMethodGuest AuthMethod = "guest"
	// AuthMethodStandard means password authentication.
	AuthMethodStandard AuthMethod = "standard"
	// AuthMethodOther covers externally issued sessions (federated logins).
	AuthMethodOther AuthMethod = "other"
)

var userCtxKey = &contextKey{"user"}
var methodCtxKey = &contextKey{"auth_method"}

type contextKey struct {
	name string
}

// WithUser sets the authenticated User in the given context.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// UserFromContext finds the user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithAuthMethod records which backend authenticated the request.
func WithAuthMethod(ctx context.Context, method AuthMethod) context.Context {
	return context.WithValue(ctx, methodCtxKey, method)
}

// AuthMethodFromContext returns the backend that authenticated the request,
// or AuthMethodOther when none was recorded.
func AuthMethodFromContext(ctx context.Context) AuthMethod {
	if method, ok := ctx.Value(methodCtxKey).(AuthMethod); ok {
		return method
	}
	return AuthMethodOther
}
