package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-auth-core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsHasRoleAndPermission(t *testing.T) {
	claims := &auth.Claims{
		Roles:       []string{"admin", "member"},
		Permissions: []string{"users:write"},
	}

	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("auditor"))
	assert.True(t, claims.HasPermission("users:write"))
	assert.False(t, claims.HasPermission("users:delete"))

	var nilClaims *auth.Claims
	assert.False(t, nilClaims.HasRole("admin"))
	assert.False(t, nilClaims.HasPermission("users:write"))
}

func TestClaimsGateResolve(t *testing.T) {
	gate := auth.NewClaimsGate(func(ctx context.Context, req auth.ClaimsRequest) (*auth.Claims, error) {
		assert.Equal(t, "user-1", req.UserID)
		return &auth.Claims{Roles: []string{"member"}}, nil
	}, nopLogger{})

	claims, err := gate.Resolve(context.Background(), auth.ClaimsRequest{UserID: "user-1"})
	require.NoError(t, err)

	// collections are normalized so hosts may omit fields
	assert.NotNil(t, claims.Permissions)
	assert.NotNil(t, claims.Attributes)
	assert.True(t, claims.HasRole("member"))
}

func TestClaimsGateResolveNilResult(t *testing.T) {
	gate := auth.NewClaimsGate(func(ctx context.Context, req auth.ClaimsRequest) (*auth.Claims, error) {
		return nil, nil
	}, nopLogger{})

	claims, err := gate.Resolve(context.Background(), auth.ClaimsRequest{})
	require.NoError(t, err)
	require.NotNil(t, claims)
	assert.Empty(t, claims.Roles)
}

func TestClaimsGateResolverError(t *testing.T) {
	gate := auth.NewClaimsGate(func(ctx context.Context, req auth.ClaimsRequest) (*auth.Claims, error) {
		return nil, assert.AnError
	}, nopLogger{})

	_, err := gate.Resolve(context.Background(), auth.ClaimsRequest{})
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryInternal, rich.Category)
}

func TestPolicyGateEvaluate(t *testing.T) {
	gate := auth.NewPolicyGate(permissionPolicy, nopLogger{})
	ctx := context.Background()

	allowed, err := gate.Evaluate(ctx, auth.PolicyRequest{
		Policy: "profile:read",
		Claims: &auth.Claims{Permissions: []string{"profile:read"}},
	})
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = gate.Evaluate(ctx, auth.PolicyRequest{
		Policy: "profile:write",
		Claims: &auth.Claims{Permissions: []string{"profile:read"}},
	})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestPolicyGateNilClaims(t *testing.T) {
	gate := auth.NewPolicyGate(func(ctx context.Context, req auth.PolicyRequest) (bool, error) {
		// resolver always sees a non-nil claims value
		require.NotNil(t, req.Claims)
		return false, nil
	}, nopLogger{})

	allowed, err := gate.Evaluate(context.Background(), auth.PolicyRequest{Policy: "anything"})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestPolicyGateResolverErrorIsNotADeny(t *testing.T) {
	gate := auth.NewPolicyGate(func(ctx context.Context, req auth.PolicyRequest) (bool, error) {
		return false, assert.AnError
	}, nopLogger{})

	_, err := gate.Evaluate(context.Background(), auth.PolicyRequest{Policy: "anything"})
	require.Error(t, err)

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, auth.TextCodePolicyEvaluation, rich.TextCode)
	assert.Equal(t, goerrors.CategoryInternal, rich.Category)
}
