package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultRefreshTokenTTL is the default session lifetime.
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// SessionManager drives the session state machine: Active -> Revoked
// (terminal) or Active -> Expired (terminal, derived from the clock).
// No state returns to Active.
type SessionManager struct {
	store         Storage
	codec         TokenCodec
	bus           *EventBus
	refreshTTL    time.Duration
	revokeOnReuse bool
	now           func() time.Time
	logger        Logger
}

// SessionOption customizes a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionLogger overrides the manager logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithRevokeOnReuse revokes the whole session when a rotated-out refresh
// token is presented again. Off by default: a replayed stale token already
// fails validation, but hosts that prefer to cut the session on first sign
// of theft can opt in.
func WithRevokeOnReuse(enabled bool) SessionOption {
	return func(m *SessionManager) {
		m.revokeOnReuse = enabled
	}
}

// NewSessionManager creates a manager over the given collaborators.
func NewSessionManager(store Storage, codec TokenCodec, bus *EventBus, refreshTTL time.Duration, opts ...SessionOption) *SessionManager {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	if bus == nil {
		bus = NewEventBus(nil)
	}

	m := &SessionManager{
		store:      store,
		codec:      codec,
		bus:        bus,
		refreshTTL: refreshTTL,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// CreateSession opens a session for the user and returns the raw refresh
// token exactly once. Only the token hash is stored; the raw secret is
// never retrievable again.
func (m *SessionManager) CreateSession(ctx context.Context, userID uuid.UUID, deviceInfo map[string]any, ipAddress, tenantID string) (*Session, string, error) {
	rawToken, err := m.codec.GenerateOpaqueSecret(RefreshTokenByteLength)
	if err != nil {
		return nil, "", err
	}

	session := &Session{
		ID:               uuid.New(),
		UserID:           userID,
		RefreshTokenHash: m.codec.HashOpaqueSecret(rawToken),
		TenantID:         tenantID,
		DeviceInfo:       deviceInfo,
		IPAddress:        ipAddress,
		ExpiresAt:        m.now().Add(m.refreshTTL),
	}

	created, err := m.store.CreateSession(ctx, session)
	if err != nil {
		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session")
	}

	m.bus.Publish(Event{
		Type:      EventSessionCreated,
		UserID:    userID.String(),
		SessionID: created.ID.String(),
		TenantID:  tenantID,
	})

	return created, rawToken, nil
}

// ValidateSession checks a (sessionId, rawRefreshToken) pair. Failure
// precedence is fixed: not found, then revoked, then expired, then token
// mismatch. A revoked session reports revocation even when the supplied
// token is also wrong.
func (m *SessionManager) ValidateSession(ctx context.Context, sessionID uuid.UUID, rawRefreshToken string) (*Session, error) {
	session, err := m.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session")
	}

	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Revoked {
		return nil, ErrSessionRevoked
	}
	if session.Expired(m.now()) {
		return nil, ErrSessionExpired
	}

	if session.RefreshTokenHash != m.codec.HashOpaqueSecret(rawRefreshToken) {
		return nil, ErrInvalidRefreshToken
	}

	return session, nil
}

// RotateRefreshToken validates the old token, then atomically replaces the
// stored hash and extends the expiry. The old hash is permanently invalid
// the instant this completes; replaying it fails with ErrInvalidRefreshToken.
// Two concurrent rotations cannot both win: the storage compare-and-swap is
// keyed on the current hash and the loser observes ErrInvalidRefreshToken.
func (m *SessionManager) RotateRefreshToken(ctx context.Context, sessionID uuid.UUID, oldRawRefreshToken string) (*Session, string, error) {
	session, err := m.ValidateSession(ctx, sessionID, oldRawRefreshToken)
	if err != nil {
		if IsInvalidRefreshTokenError(err) {
			m.handleTokenReuse(ctx, sessionID)
		}
		return nil, "", err
	}

	newRawToken, err := m.codec.GenerateOpaqueSecret(RefreshTokenByteLength)
	if err != nil {
		return nil, "", err
	}

	newHash := m.codec.HashOpaqueSecret(newRawToken)
	newExpiry := m.now().Add(m.refreshTTL)

	err = m.store.UpdateSessionToken(ctx, sessionID, session.RefreshTokenHash, newHash, newExpiry)
	if err != nil {
		if IsInvalidRefreshTokenError(err) {
			// lost the race against a concurrent rotation
			return nil, "", ErrInvalidRefreshToken
		}
		if hasTextCode(err, TextCodeSessionNotFound) {
			return nil, "", ErrSessionNotFound
		}
		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate refresh token")
	}

	session.RefreshTokenHash = newHash
	session.ExpiresAt = newExpiry

	m.bus.Publish(Event{
		Type:      EventTokenRefreshed,
		UserID:    session.UserID.String(),
		SessionID: session.ID.String(),
		TenantID:  session.TenantID,
	})

	return session, newRawToken, nil
}

// RevokeSession is idempotent: revoking an already revoked or nonexistent
// session succeeds silently. Revocation is a safety operation and must not
// fail under races with concurrent revocation. The SessionRevoked event
// fires only on a genuine state transition.
func (m *SessionManager) RevokeSession(ctx context.Context, sessionID uuid.UUID) error {
	session, err := m.store.FindSession(ctx, sessionID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session")
	}
	if session == nil {
		return nil
	}

	changed, err := m.store.RevokeSession(ctx, sessionID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session")
	}

	if changed {
		m.bus.Publish(Event{
			Type:      EventSessionRevoked,
			UserID:    session.UserID.String(),
			SessionID: sessionID.String(),
			TenantID:  session.TenantID,
		})
	}

	return nil
}

// SweepExpiredSessions bulk-deletes sessions past their expiry. The host
// owns the schedule; the engine never runs its own timers.
func (m *SessionManager) SweepExpiredSessions(ctx context.Context) (int, error) {
	count, err := m.store.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sweep expired sessions")
	}
	return count, nil
}

func (m *SessionManager) handleTokenReuse(ctx context.Context, sessionID uuid.UUID) {
	m.logger.Warn("refresh token mismatch, possible replay", "session_id", sessionID.String())

	if !m.revokeOnReuse {
		return
	}

	if err := m.RevokeSession(ctx, sessionID); err != nil {
		m.logger.Error("failed to revoke session after token reuse", "session_id", sessionID.String(), "error", err)
	}
}
