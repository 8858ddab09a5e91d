package auth_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-core"
	"github.com/stretchr/testify/assert"
)

func TestSimpleConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  auth.SimpleConfig
		wantErr bool
	}{
		{
			name:    "valid",
			config:  auth.SimpleConfig{SigningSecret: "a-signing-secret-of-length"},
			wantErr: false,
		},
		{
			name:    "missing secret",
			config:  auth.SimpleConfig{},
			wantErr: true,
		},
		{
			name:    "short secret",
			config:  auth.SimpleConfig{SigningSecret: "too-short"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSimpleConfigDefaults(t *testing.T) {
	config := auth.SimpleConfig{SigningSecret: "a-signing-secret-of-length"}

	assert.Equal(t, auth.DefaultAccessTokenTTL, config.GetAccessTokenTTL())
	assert.Equal(t, auth.DefaultRefreshTokenTTL, config.GetRefreshTokenTTL())
	assert.Equal(t, auth.DefaultBcryptCost, config.GetBcryptCost())
	assert.False(t, config.GetTrustTokenClaims())

	config.AccessTokenTTL = time.Minute
	config.RefreshTokenTTL = time.Hour
	config.BcryptCost = 6

	assert.Equal(t, time.Minute, config.GetAccessTokenTTL())
	assert.Equal(t, time.Hour, config.GetRefreshTokenTTL())
	assert.Equal(t, 6, config.GetBcryptCost())
}
