// ABOUTME: Identity context for tracking the authenticated session through handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating the resolved pair

package auth

import (
	"context"

	"github.com/perimeterhq/perimeter/internal/store"
)

// Identity is the resolved (Session, Account) pair the guard exposes to
// downstream handlers after a bearer token validates.
type Identity struct {
	Session *store.Session
	Account *store.Account
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	identity, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return identity
}
