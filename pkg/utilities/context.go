package utilities

import "context"

type contextKey string

const principalKey contextKey = "principal"

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID    string
	SessionID string
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
