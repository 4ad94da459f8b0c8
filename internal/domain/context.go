package domain

import "context"

// DefaultLocalUser is the principal used when a request carries no credentials.
const DefaultLocalUser = "local"

type principalKey struct{}

// ContextPrincipal carries the resolved identity through request context.
type ContextPrincipal struct {
	Name          string
	Authenticated bool
}

// WithPrincipal stores a ContextPrincipal in the context.
func WithPrincipal(ctx context.Context, p ContextPrincipal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the ContextPrincipal from the context.
func PrincipalFromContext(ctx context.Context) (ContextPrincipal, bool) {
	p, ok := ctx.Value(principalKey{}).(ContextPrincipal)
	return p, ok
}

// PrincipalName returns the principal name from the context, or
// DefaultLocalUser when none is set.
func PrincipalName(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok && p.Name != "" {
		return p.Name
	}
	return DefaultLocalUser
}
