package auth

import (
	"context"
	"errors"
)

type contextKey string

const (
	principalKey contextKey = "principal"
)

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return nil, errors.New("no principal in context")
	}
	return p, nil
}

// ActorID returns the principal id from the context, or "anonymous"
// when no principal is attached. Intended for logging and event actors.
func ActorID(ctx context.Context) string {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "anonymous"
	}
	return p.GetID()
}
