package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newResetManager(t *testing.T, opts ...auth.ResetOption) (*auth.PasswordResetManager, *auth.IdentityManager, *eventRecorder) {
	t.Helper()

	store := auth.NewMemoryStorage()
	identity := auth.NewIdentityManager(store,
		auth.WithIdentityLogger(nopLogger{}),
		auth.WithIdentityHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
	)
	bus := auth.NewEventBus(nopLogger{})
	recorder := &eventRecorder{}
	recorder.subscribeTo(bus)

	opts = append([]auth.ResetOption{auth.WithResetLogger(nopLogger{})}, opts...)
	manager := auth.NewPasswordResetManager(store, testCodec(), identity, bus, opts...)

	return manager, identity, recorder
}

func TestRequestReset(t *testing.T) {
	manager, identity, recorder := newResetManager(t)
	ctx := context.Background()

	user, err := identity.CreateUser(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	req, err := manager.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, req)

	assert.Equal(t, user.ID.String(), req.UserID)
	assert.NotEmpty(t, req.RawToken)
	assert.WithinDuration(t, time.Now().Add(auth.ResetTokenTTL), req.ExpiresAt, 5*time.Second)
	assert.Equal(t, 1, recorder.count(auth.EventPasswordResetRequested))
}

func TestRequestResetUnknownIdentifier(t *testing.T) {
	manager, _, recorder := newResetManager(t)

	req, err := manager.RequestReset(context.Background(), "nobody@example.com")

	// no error and no result: callers answer identically either way
	assert.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, 0, recorder.count(auth.EventPasswordResetRequested))
}

func TestConsumeReset(t *testing.T) {
	manager, identity, recorder := newResetManager(t)
	ctx := context.Background()

	user, err := identity.CreateUser(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	req, err := manager.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	require.NoError(t, manager.ConsumeReset(ctx, req.RawToken, "newpassword456"))

	updated, err := identity.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, identity.VerifyPassword(updated, "newpassword456"))
	assert.False(t, identity.VerifyPassword(updated, "password123"))
	assert.Equal(t, 1, recorder.count(auth.EventPasswordResetCompleted))

	// single use: second redemption fails and the password stays
	err = manager.ConsumeReset(ctx, req.RawToken, "thirdpassword789")
	assert.True(t, auth.IsInvalidResetTokenError(err))

	updated, err = identity.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, identity.VerifyPassword(updated, "newpassword456"))
}

func TestConsumeResetFailures(t *testing.T) {
	manager, identity, _ := newResetManager(t)
	ctx := context.Background()

	_, err := identity.CreateUser(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	t.Run("unknown token", func(t *testing.T) {
		err := manager.ConsumeReset(ctx, "no-such-token", "newpassword456")
		assert.True(t, auth.IsInvalidResetTokenError(err))
	})

	t.Run("empty password", func(t *testing.T) {
		req, err := manager.RequestReset(ctx, "ada@example.com")
		require.NoError(t, err)

		err = manager.ConsumeReset(ctx, req.RawToken, "")
		assert.Error(t, err)

		// the token survives a rejected redemption
		assert.NoError(t, manager.ConsumeReset(ctx, req.RawToken, "newpassword456"))
	})
}

func TestConsumeResetExpired(t *testing.T) {
	clock := time.Now()
	manager, identity, _ := newResetManager(t, auth.WithResetClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, err := identity.CreateUser(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	req, err := manager.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)

	err = manager.ConsumeReset(ctx, req.RawToken, "newpassword456")
	assert.True(t, auth.IsInvalidResetTokenError(err))
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	manager, identity, _ := newResetManager(t)
	ctx := context.Background()

	_, err := identity.CreateUser(ctx, "ada@example.com", "password123", nil)
	require.NoError(t, err)

	req, err := manager.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	const redeemers = 8
	var wg sync.WaitGroup
	results := make([]error, redeemers)

	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = manager.ConsumeReset(ctx, req.RawToken, "newpassword456")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.True(t, auth.IsInvalidResetTokenError(err))
		}
	}
	assert.Equal(t, 1, winners)
}
