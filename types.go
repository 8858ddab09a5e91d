package auth

import (
	"context"
	"fmt"
	"time"
)

// Logger is the minimal logging surface the engine depends on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the immutable engine options established at construction.
type Config interface {
	GetSigningSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetIssuer() string
	GetAudience() []string
	// GetTrustTokenClaims controls whether Authenticate trusts the claims
	// snapshot embedded in the access token or re-resolves per request.
	GetTrustTokenClaims() bool
	GetBcryptCost() int
}

// TokenCodec issues and verifies signed access tokens and generates the
// opaque secrets used for refresh and reset tokens.
type TokenCodec interface {
	IssueAccessToken(payload AccessTokenPayload) (string, error)
	VerifyAccessToken(token string) (*AccessClaims, error)
	GenerateOpaqueSecret(byteLength int) (string, error)
	HashOpaqueSecret(raw string) string
}

// PasswordAuthenticator authenticates passwords.
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// ClaimsResolver maps (user, session, context) to authorization claims.
// Host supplied; the engine only defines the call contract.
type ClaimsResolver func(ctx context.Context, req ClaimsRequest) (*Claims, error)

// PolicyResolver evaluates a named policy against claims and request context.
type PolicyResolver func(ctx context.Context, req PolicyRequest) (bool, error)

// ClaimsRequest carries the inputs for claims resolution.
type ClaimsRequest struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context,omitempty"`
}

// PolicyRequest carries the inputs for a policy decision.
type PolicyRequest struct {
	Policy  string         `json:"policy"`
	Claims  *Claims        `json:"claims"`
	Context map[string]any `json:"context,omitempty"`
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
