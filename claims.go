package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// Claims are the resolved authorization attributes for a user/session/context.
type Claims struct {
	Roles       []string       `json:"roles"`
	Permissions []string       `json:"permissions"`
	Attributes  map[string]any `json:"attributes"`
	Tenant      string         `json:"tenant,omitempty"`
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the claims carry the given permission.
func (c *Claims) HasPermission(permission string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// normalize fills nil collections so resolvers may omit fields.
func (c *Claims) normalize() *Claims {
	if c == nil {
		c = &Claims{}
	}
	if c.Roles == nil {
		c.Roles = []string{}
	}
	if c.Permissions == nil {
		c.Permissions = []string{}
	}
	if c.Attributes == nil {
		c.Attributes = map[string]any{}
	}
	return c
}

// ClaimsGate is a thin adapter around the host-supplied claims resolver,
// normalizing its output shape.
type ClaimsGate struct {
	resolver ClaimsResolver
	logger   Logger
}

// NewClaimsGate wraps a resolver. The resolver is mandatory; the engine
// constructor enforces that.
func NewClaimsGate(resolver ClaimsResolver, logger Logger) *ClaimsGate {
	if logger == nil {
		logger = defLogger{}
	}
	return &ClaimsGate{resolver: resolver, logger: logger}
}

// Resolve invokes the resolver and merges the result over default empty
// values. Resolve must be re-invoked per protected request unless the host
// opts into trusting the claims snapshot embedded in the access token.
func (g *ClaimsGate) Resolve(ctx context.Context, req ClaimsRequest) (*Claims, error) {
	claims, err := g.resolver(ctx, req)
	if err != nil {
		g.logger.Error("claims resolver failed", "user_id", req.UserID, "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "claims resolution failed")
	}

	return claims.normalize(), nil
}

// PolicyGate is a thin adapter around the host-supplied policy resolver.
type PolicyGate struct {
	resolver PolicyResolver
	logger   Logger
}

// NewPolicyGate wraps a resolver.
func NewPolicyGate(resolver PolicyResolver, logger Logger) *PolicyGate {
	if logger == nil {
		logger = defLogger{}
	}
	return &PolicyGate{resolver: resolver, logger: logger}
}

// Evaluate delegates to the resolver. A resolver failure propagates as an
// internal error, never as a silent deny.
func (g *PolicyGate) Evaluate(ctx context.Context, req PolicyRequest) (bool, error) {
	if req.Claims == nil {
		req.Claims = (&Claims{}).normalize()
	}

	allowed, err := g.resolver(ctx, req)
	if err != nil {
		g.logger.Error("policy resolver failed", "policy", req.Policy, "error", err)
		return false, goerrors.Wrap(err, ErrPolicyEvaluation.Category, ErrPolicyEvaluation.Message).
			WithTextCode(ErrPolicyEvaluation.TextCode)
	}

	return allowed, nil
}
