package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ResetTokenTTL is fixed at one hour.
const ResetTokenTTL = time.Hour

// ResetRequest is returned by RequestReset for the host to deliver the raw
// token out of band (email, SMS). The engine never sends notifications.
type ResetRequest struct {
	UserID     string    `json:"user_id"`
	Identifier string    `json:"identifier"`
	RawToken   string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PasswordResetManager issues and consumes single-use reset tokens.
type PasswordResetManager struct {
	store    Storage
	codec    TokenCodec
	identity *IdentityManager
	bus      *EventBus
	now      func() time.Time
	logger   Logger
}

// ResetOption customizes a PasswordResetManager.
type ResetOption func(*PasswordResetManager)

// WithResetLogger overrides the manager logger.
func WithResetLogger(logger Logger) ResetOption {
	return func(m *PasswordResetManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithResetClock injects a custom clock (useful for tests).
func WithResetClock(clock func() time.Time) ResetOption {
	return func(m *PasswordResetManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewPasswordResetManager creates a manager over the given collaborators.
func NewPasswordResetManager(store Storage, codec TokenCodec, identity *IdentityManager, bus *EventBus, opts ...ResetOption) *PasswordResetManager {
	if bus == nil {
		bus = NewEventBus(nil)
	}

	m := &PasswordResetManager{
		store:    store,
		codec:    codec,
		identity: identity,
		bus:      bus,
		now:      time.Now,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// RequestReset issues a reset token for the identifier. It returns
// (nil, nil) when no user matches, so callers can answer identically for
// existing and non-existing identifiers.
func (m *PasswordResetManager) RequestReset(ctx context.Context, identifier string) (*ResetRequest, error) {
	user, err := m.identity.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	rawToken, err := m.codec.GenerateOpaqueSecret(ResetTokenByteLength)
	if err != nil {
		return nil, err
	}

	expiresAt := m.now().Add(ResetTokenTTL)

	_, err = m.store.CreatePasswordResetToken(ctx, user.ID, m.codec.HashOpaqueSecret(rawToken), expiresAt)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store reset token")
	}

	m.bus.Publish(Event{
		Type:   EventPasswordResetRequested,
		UserID: user.ID.String(),
	})

	return &ResetRequest{
		UserID:     user.ID.String(),
		Identifier: user.Identifier,
		RawToken:   rawToken,
		ExpiresAt:  expiresAt,
	}, nil
}

// ConsumeReset redeems a reset token and rehashes the user's password.
// Consumption is a single atomic storage operation, so two concurrent
// redemptions of the same token cannot both succeed.
func (m *PasswordResetManager) ConsumeReset(ctx context.Context, rawToken, newPassword string) error {
	if newPassword == "" {
		return ErrNoEmptyString
	}

	record, err := m.store.ConsumePasswordResetToken(ctx, m.codec.HashOpaqueSecret(rawToken), m.now())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume reset token")
	}
	if record == nil {
		return ErrInvalidResetToken
	}

	newHash, err := m.identity.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := m.identity.UpdatePasswordHash(ctx, record.UserID, newHash); err != nil {
		return err
	}

	m.bus.Publish(Event{
		Type:   EventPasswordResetCompleted,
		UserID: record.UserID.String(),
	})

	return nil
}
