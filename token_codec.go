package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// RefreshTokenByteLength is the entropy of opaque refresh tokens.
	RefreshTokenByteLength = 40
	// ResetTokenByteLength is the entropy of opaque reset tokens.
	ResetTokenByteLength = 32
)

// AccessTokenPayload carries the fields signed into an access token.
type AccessTokenPayload struct {
	Subject   string
	SessionID string
	Claims    *Claims
	Tenant    string
}

// AccessClaims is the decoded access token. Signature and expiry are
// enforced by the JWT layer; no session state is consulted.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string  `json:"sid,omitempty"`
	Snapshot  *Claims `json:"claims,omitempty"`
	Tenant    string  `json:"tenant,omitempty"`
}

// UserID returns the token subject.
func (c *AccessClaims) UserID() string {
	return c.RegisteredClaims.Subject
}

// Expires returns the expiration time.
func (c *AccessClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// TokenCodecImpl implements the TokenCodec interface. It is stateless:
// pure functions over the injected secret and TTL.
type TokenCodecImpl struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// CodecOption customizes a TokenCodecImpl.
type CodecOption func(*TokenCodecImpl)

// WithCodecClock injects a custom clock (useful for tests).
func WithCodecClock(clock func() time.Time) CodecOption {
	return func(tc *TokenCodecImpl) {
		if clock != nil {
			tc.now = clock
		}
	}
}

// WithCodecLogger overrides the codec logger.
func WithCodecLogger(logger Logger) CodecOption {
	return func(tc *TokenCodecImpl) {
		if logger != nil {
			tc.logger = logger
		}
	}
}

// NewTokenCodec creates a new TokenCodec instance.
func NewTokenCodec(signingKey []byte, ttl time.Duration, issuer string, audience []string, opts ...CodecOption) *TokenCodecImpl {
	var aud jwt.ClaimStrings
	if len(audience) > 0 {
		aud = make(jwt.ClaimStrings, len(audience))
		copy(aud, audience)
	}

	tc := &TokenCodecImpl{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		audience:   aud,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(tc)
		}
	}

	return tc
}

// IssueAccessToken signs the payload into a short-lived HS256 token.
func (tc *TokenCodecImpl) IssueAccessToken(payload AccessTokenPayload) (string, error) {
	if payload.Subject == "" {
		return "", goerrors.New("access token subject is required", goerrors.CategoryBadInput)
	}

	now := tc.now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tc.issuer,
			Subject:   payload.Subject,
			Audience:  tc.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tc.ttl)),
		},
		SessionID: payload.SessionID,
		Snapshot:  payload.Claims,
		Tenant:    payload.Tenant,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(tc.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}

	return signed, nil
}

// VerifyAccessToken parses and validates a token string. Expired tokens and
// malformed tokens fail differently so callers can trigger a silent refresh
// for the former and hard-reject the latter.
func (tc *TokenCodecImpl) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if tc.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(tc.issuer))
	}
	if len(tc.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(tc.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			tc.logger.Error("TokenCodec verify encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tc.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		tc.logger.Error("TokenCodec verify could not decode claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// GenerateOpaqueSecret returns a cryptographically random hex string of the
// given entropy. Used for both refresh and reset tokens.
func (tc *TokenCodecImpl) GenerateOpaqueSecret(byteLength int) (string, error) {
	if byteLength < ResetTokenByteLength {
		byteLength = ResetTokenByteLength
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random bytes")
	}

	return hex.EncodeToString(buf), nil
}

// HashOpaqueSecret returns the SHA-256 digest of a raw opaque token. Opaque
// tokens are high entropy, so a fast digest keeps verification cheap while
// the raw secret is never stored.
func (tc *TokenCodecImpl) HashOpaqueSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

var _ TokenCodec = (*TokenCodecImpl)(nil)
