package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipal sets the authenticated Principal in the given context.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the Principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok
}

// RouterPrincipal extracts the Principal from the router context.
func RouterPrincipal(ctx router.Context, key string) (*Principal, bool) {
	if key == "" {
		key = PrincipalLocalsKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	principal, ok := raw.(*Principal)
	return principal, ok
}

// HasRole checks a role directly from the standard context.
func HasRole(ctx context.Context, role string) bool {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.Claims == nil {
		return false
	}
	return principal.Claims.HasRole(role)
}

// HasPermission checks a permission directly from the standard context.
func HasPermission(ctx context.Context, permission string) bool {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.Claims == nil {
		return false
	}
	return principal.Claims.HasPermission(permission)
}
