package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// LoginRequest carries everything the login flow needs from the transport.
type LoginRequest struct {
	Identifier string
	Password   string
	DeviceInfo map[string]any
	IPAddress  string
	TenantID   string
	Context    map[string]any
}

// TokenPair is the result of a successful login or refresh. RefreshToken is
// the raw opaque secret, transmitted to the client exactly once.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SessionID    string    `json:"session_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Principal is the authenticated caller attached to protected requests.
type Principal struct {
	UserID    string
	SessionID string
	Tenant    string
	Claims    *Claims
	Context   map[string]any
}

// Engine is the session and token lifecycle core. It is immutable once
// constructed; hosts needing different configurations (per tenant, tests)
// build independent instances.
type Engine struct {
	config   Config
	store    Storage
	codec    TokenCodec
	identity *IdentityManager
	sessions *SessionManager
	resets   *PasswordResetManager
	claims   *ClaimsGate
	policy   *PolicyGate
	bus      *EventBus
	logger   Logger
}

type engineOptions struct {
	logger        Logger
	bus           *EventBus
	codec         TokenCodec
	clock         func() time.Time
	revokeOnReuse bool
}

// EngineOption customizes engine construction.
type EngineOption func(*engineOptions)

// WithLogger sets the logger shared by every component.
func WithLogger(logger Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventBus replaces the engine-owned bus, e.g. to share one bus across
// engines.
func WithEventBus(bus *EventBus) EngineOption {
	return func(o *engineOptions) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// WithTokenCodec replaces the default HS256 codec.
func WithTokenCodec(codec TokenCodec) EngineOption {
	return func(o *engineOptions) {
		if codec != nil {
			o.codec = codec
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) EngineOption {
	return func(o *engineOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSessionRevokeOnReuse enables session revocation when a rotated-out
// refresh token is replayed.
func WithSessionRevokeOnReuse(enabled bool) EngineOption {
	return func(o *engineOptions) {
		o.revokeOnReuse = enabled
	}
}

// New builds a fully configured engine. Every collaborator is mandatory and
// checked here, not at first call.
func New(config Config, store Storage, claimsResolver ClaimsResolver, policyResolver PolicyResolver, opts ...EngineOption) (*Engine, error) {
	if config == nil {
		return nil, goerrors.New("config is required", goerrors.CategoryBadInput)
	}
	if store == nil {
		return nil, goerrors.New("storage adapter is required", goerrors.CategoryBadInput)
	}
	if claimsResolver == nil {
		return nil, goerrors.New("claims resolver is required", goerrors.CategoryBadInput)
	}
	if policyResolver == nil {
		return nil, goerrors.New("policy resolver is required", goerrors.CategoryBadInput)
	}
	if config.GetSigningSecret() == "" {
		return nil, goerrors.New("signing secret is required", goerrors.CategoryBadInput)
	}

	if validator, ok := config.(interface{ Validate() error }); ok {
		if err := validator.Validate(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid engine config")
		}
	}

	options := &engineOptions{
		logger: defLogger{},
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if options.bus == nil {
		options.bus = NewEventBus(options.logger)
	}
	if options.codec == nil {
		options.codec = NewTokenCodec(
			[]byte(config.GetSigningSecret()),
			config.GetAccessTokenTTL(),
			config.GetIssuer(),
			config.GetAudience(),
			WithCodecClock(options.clock),
			WithCodecLogger(options.logger),
		)
	}

	identity := NewIdentityManager(store,
		WithIdentityLogger(options.logger),
		WithIdentityHasher(NewBcryptHasher(config.GetBcryptCost())),
	)

	sessions := NewSessionManager(store, options.codec, options.bus, config.GetRefreshTokenTTL(),
		WithSessionLogger(options.logger),
		WithSessionClock(options.clock),
		WithRevokeOnReuse(options.revokeOnReuse),
	)

	resets := NewPasswordResetManager(store, options.codec, identity, options.bus,
		WithResetLogger(options.logger),
		WithResetClock(options.clock),
	)

	return &Engine{
		config:   config,
		store:    store,
		codec:    options.codec,
		identity: identity,
		sessions: sessions,
		resets:   resets,
		claims:   NewClaimsGate(claimsResolver, options.logger),
		policy:   NewPolicyGate(policyResolver, options.logger),
		bus:      options.bus,
		logger:   options.logger,
	}, nil
}

// Register creates a new user account.
func (e *Engine) Register(ctx context.Context, identifier, password string, metadata map[string]any) (*User, error) {
	return e.identity.CreateUser(ctx, identifier, password, metadata)
}

// Login verifies credentials, opens a session, and issues the token pair.
// Every failure surfaces as ErrInvalidCredentials; the caller never learns
// whether the identifier exists or which check failed.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	user, err := e.identity.FindByIdentifier(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	if user == nil {
		e.emitLoginFailure("", req.Identifier, "user_not_found")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		e.emitLoginFailure(user.ID.String(), req.Identifier, "user_disabled")
		return nil, ErrInvalidCredentials
	}

	if !e.identity.VerifyPassword(user, req.Password) {
		e.emitLoginFailure(user.ID.String(), req.Identifier, "invalid_password")
		return nil, ErrInvalidCredentials
	}

	session, rawRefresh, err := e.sessions.CreateSession(ctx, user.ID, req.DeviceInfo, req.IPAddress, req.TenantID)
	if err != nil {
		return nil, err
	}

	pair, err := e.issueTokens(ctx, user, session, req.Context)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = rawRefresh

	e.bus.Publish(Event{
		Type:      EventLoginSuccess,
		UserID:    user.ID.String(),
		SessionID: session.ID.String(),
		TenantID:  session.TenantID,
	})

	return pair, nil
}

// Refresh rotates the session's refresh token and issues a fresh token
// pair. All ValidateSession failure modes apply. A session whose user has
// been deactivated since login is revoked on the spot.
func (e *Engine) Refresh(ctx context.Context, sessionID uuid.UUID, rawRefreshToken string, reqContext map[string]any) (*TokenPair, error) {
	session, newRawRefresh, err := e.sessions.RotateRefreshToken(ctx, sessionID, rawRefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := e.identity.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	if user == nil || !user.IsActive {
		if err := e.sessions.RevokeSession(ctx, sessionID); err != nil {
			e.logger.Error("failed to revoke session for disabled user", "session_id", sessionID.String(), "error", err)
		}
		return nil, ErrSessionRevoked
	}

	pair, err := e.issueTokens(ctx, user, session, reqContext)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = newRawRefresh

	return pair, nil
}

// Logout revokes the session. Idempotent.
func (e *Engine) Logout(ctx context.Context, sessionID uuid.UUID) error {
	return e.sessions.RevokeSession(ctx, sessionID)
}

// Authenticate verifies an access token and returns the calling principal.
// Claims come from the embedded snapshot when the config trusts it,
// otherwise they are re-resolved — trading a resolver round trip for
// immediate revocation visibility is the host's call.
func (e *Engine) Authenticate(ctx context.Context, token string, reqContext map[string]any) (*Principal, error) {
	payload, err := e.codec.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}

	principal := &Principal{
		UserID:    payload.UserID(),
		SessionID: payload.SessionID,
		Tenant:    payload.Tenant,
		Context:   reqContext,
	}

	if e.config.GetTrustTokenClaims() && payload.Snapshot != nil {
		principal.Claims = payload.Snapshot.normalize()
		return principal, nil
	}

	claims, err := e.claims.Resolve(ctx, ClaimsRequest{
		UserID:    principal.UserID,
		SessionID: principal.SessionID,
		Context:   reqContext,
	})
	if err != nil {
		return nil, err
	}

	principal.Claims = claims
	if principal.Tenant == "" {
		principal.Tenant = claims.Tenant
	}

	return principal, nil
}

// Authorize evaluates a named policy for the principal. A deny publishes
// PolicyDenied; a resolver failure propagates as an internal error.
func (e *Engine) Authorize(ctx context.Context, principal *Principal, policy string) (bool, error) {
	if principal == nil {
		return false, goerrors.New("principal is required", goerrors.CategoryBadInput)
	}

	allowed, err := e.policy.Evaluate(ctx, PolicyRequest{
		Policy:  policy,
		Claims:  principal.Claims,
		Context: principal.Context,
	})
	if err != nil {
		return false, err
	}

	if !allowed {
		e.bus.Publish(Event{
			Type:      EventPolicyDenied,
			UserID:    principal.UserID,
			SessionID: principal.SessionID,
			TenantID:  principal.Tenant,
			Reason:    policy,
		})
	}

	return allowed, nil
}

// RequestPasswordReset issues a reset token, nil result for unknown
// identifiers.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) (*ResetRequest, error) {
	return e.resets.RequestReset(ctx, identifier)
}

// ResetPassword redeems a reset token.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	return e.resets.ConsumeReset(ctx, rawToken, newPassword)
}

// SweepExpiredSessions removes expired sessions; meant for a host-owned
// periodic schedule.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	return e.sessions.SweepExpiredSessions(ctx)
}

// Events exposes the bus for startup-time subscriptions.
func (e *Engine) Events() *EventBus {
	return e.bus
}

// Identity returns the identity manager.
func (e *Engine) Identity() *IdentityManager {
	return e.identity
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *SessionManager {
	return e.sessions
}

// PasswordResets returns the reset manager.
func (e *Engine) PasswordResets() *PasswordResetManager {
	return e.resets
}

// TokenCodec returns the codec used by this engine.
func (e *Engine) TokenCodec() TokenCodec {
	return e.codec
}

func (e *Engine) issueTokens(ctx context.Context, user *User, session *Session, reqContext map[string]any) (*TokenPair, error) {
	claims, err := e.claims.Resolve(ctx, ClaimsRequest{
		UserID:    user.ID.String(),
		SessionID: session.ID.String(),
		Context:   reqContext,
	})
	if err != nil {
		return nil, err
	}

	tenant := session.TenantID
	if tenant == "" {
		tenant = claims.Tenant
	}

	accessToken, err := e.codec.IssueAccessToken(AccessTokenPayload{
		Subject:   user.ID.String(),
		SessionID: session.ID.String(),
		Claims:    claims,
		Tenant:    tenant,
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken: accessToken,
		SessionID:   session.ID.String(),
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

func (e *Engine) emitLoginFailure(userID, identifier, reason string) {
	e.bus.Publish(Event{
		Type:   EventLoginFailure,
		UserID: userID,
		Reason: reason,
		Metadata: map[string]any{
			"identifier": identifier,
		},
	})
}
