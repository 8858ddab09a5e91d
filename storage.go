package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage is the durable persistence contract the engine consumes. Adapters
// own users, sessions, and reset tokens; the engine never caches them beyond
// one operation.
//
// Lookups return (nil, nil) when no row matches. Conditional updates carry
// the atomicity guarantees the session state machine depends on:
//
//   - UpdateSessionToken replaces the refresh token hash only when the
//     stored hash equals currentHash (compare-and-swap). A losing rotation
//     must observe ErrInvalidRefreshToken.
//   - ConsumePasswordResetToken finds an unused, unexpired token and marks
//     it used in a single atomic step, returning (nil, nil) when the token
//     is missing, used, or expired.
//   - CreateUser must rely on a storage-level uniqueness constraint and map
//     a violation to ErrIdentifierInUse; any pre-check in the engine is a
//     fast path only.
type Storage interface {
	CreateUser(ctx context.Context, identifier, passwordHash string, metadata map[string]any) (*User, error)
	FindUserByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, newHash string) error

	CreateSession(ctx context.Context, session *Session) (*Session, error)
	FindSession(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	UpdateSessionToken(ctx context.Context, sessionID uuid.UUID, currentHash, newHash string, expiresAt time.Time) error
	// RevokeSession reports whether the call actually flipped the session to
	// revoked. Missing or already revoked sessions return (false, nil) so
	// revocation stays idempotent under races.
	RevokeSession(ctx context.Context, sessionID uuid.UUID) (bool, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)

	CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (*PasswordResetToken, error)
	ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*PasswordResetToken, error)
}
