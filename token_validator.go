package auth

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenValidator validates access tokens and extracts claims without tying
// callers to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (*AccessClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*AccessClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*AccessClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// CodecValidator adapts a TokenCodec into a TokenValidator.
func CodecValidator(codec TokenCodec) TokenValidator {
	return TokenValidatorFunc(func(tokenString string) (*AccessClaims, error) {
		return codec.VerifyAccessToken(tokenString)
	})
}

// MultiTokenValidator tries validators in order until one succeeds. A
// malformed-token error means "try next"; any other failure is final.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite
// validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (*AccessClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if IsMalformedTokenError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}

// JWKSConfig configures validation of externally issued tokens against one
// or more JWKS endpoints.
type JWKSConfig struct {
	URLs            []string
	RefreshInterval time.Duration
	Issuer          string
	Audience        string
	Logger          Logger
}

// JWKSValidator verifies tokens minted by an external identity provider
// against its published key set.
type JWKSValidator struct {
	keyfunc jwt.Keyfunc
	config  JWKSConfig
}

var _ TokenValidator = (*JWKSValidator)(nil)

// NewJWKSValidator fetches the key sets and keeps them refreshed in the
// background.
func NewJWKSValidator(config JWKSConfig) (*JWKSValidator, error) {
	if len(config.URLs) == 0 {
		return nil, goerrors.New("at least one JWKS URL is required", goerrors.CategoryBadInput)
	}

	logger := config.Logger
	if logger == nil {
		logger = defLogger{}
	}

	refreshInterval := config.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = time.Hour
	}

	options := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Error("jwks refresh failed", "error", err)
		},
		RefreshInterval:   refreshInterval,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}

	multiple := map[string]keyfunc.Options{}
	for _, url := range config.URLs {
		multiple[url] = options
	}

	jwks, err := keyfunc.GetMultiple(multiple, keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load JWKS")
	}

	return &JWKSValidator{
		keyfunc: jwks.Keyfunc,
		config:  config,
	}, nil
}

// Validate satisfies the TokenValidator interface.
func (v *JWKSValidator) Validate(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	parserOpts := []jwt.ParserOption{}
	if v.config.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc, parserOpts...)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
