package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-auth-core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecValidator(t *testing.T) {
	codec := testCodec()
	validator := auth.CodecValidator(codec)

	token, err := codec.IssueAccessToken(auth.AccessTokenPayload{
		Subject:   "user-1",
		SessionID: "session-1",
	})
	require.NoError(t, err)

	claims, err := validator.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "session-1", claims.SessionID)

	_, err = validator.Validate("garbage")
	assert.True(t, auth.IsMalformedTokenError(err))
}

func TestTokenValidatorFuncNil(t *testing.T) {
	var fn auth.TokenValidatorFunc

	_, err := fn.Validate("anything")
	assert.True(t, auth.IsMalformedTokenError(err))
}

func TestMultiTokenValidator(t *testing.T) {
	primary := testCodec()
	secondary := auth.NewTokenCodec([]byte("another-signing-secret-entirely"), auth.DefaultAccessTokenTTL, "other-issuer", nil)

	validator := auth.NewMultiTokenValidator(
		nil, // nils are filtered out
		auth.CodecValidator(primary),
		auth.CodecValidator(secondary),
	)

	t.Run("first validator wins", func(t *testing.T) {
		token, err := primary.IssueAccessToken(auth.AccessTokenPayload{Subject: "user-1", SessionID: "s-1"})
		require.NoError(t, err)

		claims, err := validator.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID())
	})

	t.Run("falls through to later validators", func(t *testing.T) {
		token, err := secondary.IssueAccessToken(auth.AccessTokenPayload{Subject: "user-2", SessionID: "s-2"})
		require.NoError(t, err)

		claims, err := validator.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user-2", claims.UserID())
	})

	t.Run("malformed everywhere", func(t *testing.T) {
		_, err := validator.Validate("not-a-token")
		assert.True(t, auth.IsMalformedTokenError(err))
	})

	t.Run("non-malformed failures are final", func(t *testing.T) {
		expired := auth.TokenValidatorFunc(func(string) (*auth.AccessClaims, error) {
			return nil, auth.ErrTokenExpired
		})
		fallback := auth.TokenValidatorFunc(func(string) (*auth.AccessClaims, error) {
			t.Fatal("fallback should not run after a final error")
			return nil, nil
		})

		_, err := auth.NewMultiTokenValidator(expired, fallback).Validate("anything")
		assert.True(t, auth.IsTokenExpiredError(err))
	})

	t.Run("empty validator list", func(t *testing.T) {
		_, err := auth.NewMultiTokenValidator().Validate("anything")
		assert.True(t, auth.IsMalformedTokenError(err))
	})
}

func TestNewJWKSValidatorRequiresURLs(t *testing.T) {
	_, err := auth.NewJWKSValidator(auth.JWKSConfig{})
	assert.Error(t, err)
}
