package auth

import "context"

type contextKey string

const authContextKey contextKey = "guard_auth"

// Identity holds authenticated caller information extracted from an
// API key.
type Identity struct {
	ClientID   string
	Name       string
	RPMLimit   int
	DailyQuota int
}

func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, authContextKey, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(authContextKey).(*Identity)
	return id, ok
}
