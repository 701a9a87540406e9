package auth

import (
	"context"
)

// `contextKey` is a custom type for context keys. Using a custom type prevents collisions
// with context keys defined in other packages.
type contextKey string

const (
	// `identityContextKey` is the key under which the gate stores the caller's Identity.
	identityContextKey contextKey = "auth_identity"
)

// Identity is the authenticated caller of a request.
// SubjectID is our user id for self-issued tokens and the provider's `sub` for external ones.
type Identity struct {
	SubjectID string
	Variant   TokenVariant
}

// WithIdentity returns a child context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext extracts the Identity stored by the gate.
// The second return value reports whether the request was authenticated at all.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	if !ok || id.SubjectID == "" {
		return Identity{}, false
	}
	return id, true
}
