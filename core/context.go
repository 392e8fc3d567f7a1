package core

import "context"

// userKey is the context key for the acting user's identity.
// It is unexported so only WithUser can set it; the identity is scoped to one
// turn's context and disappears with it, so a worker picking up the next turn
// can never observe a stale user id.
type userKey struct{}

// WithUser binds the acting user's identity to the context for one turn.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the acting user's identity, if bound.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}
