package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	// DefaultAccessTokenTTL is the default access token lifetime.
	DefaultAccessTokenTTL = 15 * time.Minute
)

// SimpleConfig is a plain Config implementation. Zero values fall back to
// the defaults; only the signing secret is mandatory.
type SimpleConfig struct {
	SigningSecret    string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	Issuer           string
	Audience         []string
	TrustTokenClaims bool
	BcryptCost       int
}

// Validate will run validation rules
func (c SimpleConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.AccessTokenTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.RefreshTokenTTL, validation.Min(time.Duration(0))),
	)
}

func (c SimpleConfig) GetSigningSecret() string { return c.SigningSecret }

func (c SimpleConfig) GetAccessTokenTTL() time.Duration {
	if c.AccessTokenTTL <= 0 {
		return DefaultAccessTokenTTL
	}
	return c.AccessTokenTTL
}

func (c SimpleConfig) GetRefreshTokenTTL() time.Duration {
	if c.RefreshTokenTTL <= 0 {
		return DefaultRefreshTokenTTL
	}
	return c.RefreshTokenTTL
}

func (c SimpleConfig) GetIssuer() string { return c.Issuer }

func (c SimpleConfig) GetAudience() []string { return c.Audience }

func (c SimpleConfig) GetTrustTokenClaims() bool { return c.TrustTokenClaims }

func (c SimpleConfig) GetBcryptCost() int {
	if c.BcryptCost <= 0 {
		return DefaultBcryptCost
	}
	return c.BcryptCost
}

var _ Config = SimpleConfig{}
