package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-auth-core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts ...auth.EngineOption) (*auth.Engine, *auth.MemoryStorage, *eventRecorder) {
	t.Helper()
	return newEngineWithConfig(t, testConfig(), opts...)
}

func newEngineWithConfig(t *testing.T, config auth.SimpleConfig, opts ...auth.EngineOption) (*auth.Engine, *auth.MemoryStorage, *eventRecorder) {
	t.Helper()

	store := auth.NewMemoryStorage()
	recorder := &eventRecorder{}

	opts = append([]auth.EngineOption{auth.WithLogger(nopLogger{})}, opts...)
	engine, err := auth.New(config, store, allowAllClaims, permissionPolicy, opts...)
	require.NoError(t, err)

	recorder.subscribeTo(engine.Events())

	return engine, store, recorder
}

func TestNewEngineValidation(t *testing.T) {
	store := auth.NewMemoryStorage()

	tests := []struct {
		name   string
		config auth.Config
		store  auth.Storage
		claims auth.ClaimsResolver
		policy auth.PolicyResolver
	}{
		{"nil config", nil, store, allowAllClaims, permissionPolicy},
		{"nil store", testConfig(), nil, allowAllClaims, permissionPolicy},
		{"nil claims resolver", testConfig(), store, nil, permissionPolicy},
		{"nil policy resolver", testConfig(), store, allowAllClaims, nil},
		{"empty signing secret", auth.SimpleConfig{}, store, allowAllClaims, permissionPolicy},
		{"short signing secret", auth.SimpleConfig{SigningSecret: "short"}, store, allowAllClaims, permissionPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.New(tt.config, tt.store, tt.claims, tt.policy)
			assert.Error(t, err)
		})
	}
}

func TestEngineFullFlow(t *testing.T) {
	engine, _, recorder := newEngine(t)
	ctx := context.Background()

	user, err := engine.Register(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	pair, err := engine.Login(ctx, auth.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "password123",
		TenantID:   "acme",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	principal, err := engine.Authenticate(ctx, pair.AccessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), principal.UserID)
	assert.Equal(t, pair.SessionID, principal.SessionID)
	assert.Equal(t, "acme", principal.Tenant)
	assert.True(t, principal.Claims.HasRole("member"))

	allowed, err := engine.Authorize(ctx, principal, "profile:read")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = engine.Authorize(ctx, principal, "admin:write")
	require.NoError(t, err)
	assert.False(t, allowed)

	sessionID := uuid.MustParse(pair.SessionID)

	rotated, err := engine.Refresh(ctx, sessionID, pair.RefreshToken, nil)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// the rotated-out refresh token is dead
	_, err = engine.Refresh(ctx, sessionID, pair.RefreshToken, nil)
	assert.True(t, auth.IsInvalidRefreshTokenError(err))

	require.NoError(t, engine.Logout(ctx, sessionID))

	_, err = engine.Refresh(ctx, sessionID, rotated.RefreshToken, nil)
	assert.True(t, auth.IsSessionRevokedError(err))

	assert.Equal(t, 1, recorder.count(auth.EventLoginSuccess))
	assert.Equal(t, 1, recorder.count(auth.EventSessionCreated))
	assert.Equal(t, 1, recorder.count(auth.EventTokenRefreshed))
	assert.Equal(t, 1, recorder.count(auth.EventSessionRevoked))
	assert.Equal(t, 1, recorder.count(auth.EventPolicyDenied))
}

func TestEngineLoginUniformFailure(t *testing.T) {
	engine, store, recorder := newEngine(t)
	ctx := context.Background()

	_, err := engine.Register(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	disabled, err := engine.Register(ctx, "off@example.com", "password123", nil)
	require.NoError(t, err)
	store.SetUserActive(disabled.ID, false)

	tests := []struct {
		name       string
		identifier string
		password   string
	}{
		{"unknown identifier", "nobody@example.com", "password123"},
		{"wrong password", "ada@example.com", "wrong"},
		{"disabled user", "off@example.com", "password123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Login(ctx, auth.LoginRequest{
				Identifier: tt.identifier,
				Password:   tt.password,
			})
			// one indistinguishable failure for all causes
			assert.Equal(t, auth.ErrInvalidCredentials, err)
		})
	}

	failures := recorder.ofType(auth.EventLoginFailure)
	require.Len(t, failures, 3)
	assert.Equal(t, "user_not_found", failures[0].Reason)
	assert.Equal(t, "invalid_password", failures[1].Reason)
	assert.Equal(t, "user_disabled", failures[2].Reason)
}

func TestEngineRefreshRevokesDisabledUser(t *testing.T) {
	engine, store, recorder := newEngine(t)
	ctx := context.Background()

	user, err := engine.Register(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	pair, err := engine.Login(ctx, auth.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "password123",
	})
	require.NoError(t, err)

	store.SetUserActive(user.ID, false)

	sessionID := uuid.MustParse(pair.SessionID)
	_, err = engine.Refresh(ctx, sessionID, pair.RefreshToken, nil)
	assert.True(t, auth.IsSessionRevokedError(err))

	// the session is gone for good, not just this call
	_, err = engine.Sessions().ValidateSession(ctx, sessionID, pair.RefreshToken)
	assert.True(t, auth.IsSessionRevokedError(err))
	assert.Equal(t, 1, recorder.count(auth.EventSessionRevoked))
}

func TestEngineAuthenticateTrustsSnapshotWhenConfigured(t *testing.T) {
	config := testConfig()
	config.TrustTokenClaims = true

	store := auth.NewMemoryStorage()
	resolverCalls := 0
	engine, err := auth.New(config, store,
		func(ctx context.Context, req auth.ClaimsRequest) (*auth.Claims, error) {
			resolverCalls++
			return &auth.Claims{Roles: []string{"member"}}, nil
		},
		permissionPolicy,
		auth.WithLogger(nopLogger{}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = engine.Register(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	pair, err := engine.Login(ctx, auth.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "password123",
	})
	require.NoError(t, err)

	callsAfterLogin := resolverCalls

	principal, err := engine.Authenticate(ctx, pair.AccessToken, nil)
	require.NoError(t, err)
	assert.True(t, principal.Claims.HasRole("member"))

	// authenticate served claims from the token snapshot
	assert.Equal(t, callsAfterLogin, resolverCalls)
}

func TestEngineAuthenticateReResolvesByDefault(t *testing.T) {
	store := auth.NewMemoryStorage()
	resolverCalls := 0
	engine, err := auth.New(testConfig(), store,
		func(ctx context.Context, req auth.ClaimsRequest) (*auth.Claims, error) {
			resolverCalls++
			return &auth.Claims{Roles: []string{"member"}}, nil
		},
		permissionPolicy,
		auth.WithLogger(nopLogger{}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = engine.Register(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	pair, err := engine.Login(ctx, auth.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "password123",
	})
	require.NoError(t, err)

	callsAfterLogin := resolverCalls

	_, err = engine.Authenticate(ctx, pair.AccessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, callsAfterLogin+1, resolverCalls)
}

func TestEngineAuthenticateRejectsBadTokens(t *testing.T) {
	engine, _, _ := newEngine(t)

	_, err := engine.Authenticate(context.Background(), "garbage", nil)
	assert.True(t, auth.IsMalformedTokenError(err))
}

func TestEngineAuthorizeNilPrincipal(t *testing.T) {
	engine, _, _ := newEngine(t)

	_, err := engine.Authorize(context.Background(), nil, "profile:read")
	assert.Error(t, err)
}

func TestEnginePasswordResetFlow(t *testing.T) {
	engine, _, recorder := newEngine(t)
	ctx := context.Background()

	_, err := engine.Register(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	// unknown identifier: no error, nothing issued
	req, err := engine.RequestPasswordReset(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, req)

	req, err = engine.RequestPasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, req)

	require.NoError(t, engine.ResetPassword(ctx, req.RawToken, "newpassword456"))

	_, err = engine.Login(ctx, auth.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "password123",
	})
	assert.True(t, auth.IsInvalidCredentialsError(err))

	pair, err := engine.Login(ctx, auth.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "newpassword456",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	assert.Equal(t, 1, recorder.count(auth.EventPasswordResetRequested))
	assert.Equal(t, 1, recorder.count(auth.EventPasswordResetCompleted))
}

func TestEngineSweepExpiredSessions(t *testing.T) {
	engine, _, _ := newEngine(t)
	ctx := context.Background()

	count, err := engine.SweepExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
