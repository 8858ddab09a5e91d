package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model. The primary identifier is a unique natural key
// (email, username, phone); secondary identifiers may live in Metadata.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Identifier    string         `bun:"identifier,notnull,unique" json:"identifier,omitempty"`
	PasswordHash  string         `bun:"password_hash,notnull" json:"-"`
	IsActive      bool           `bun:"is_active,notnull,default:true" json:"is_active"`
	Metadata      map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// MetadataString returns the string value stored under key, if any.
func (u *User) MetadataString(key string) (string, bool) {
	if u == nil || u.Metadata == nil {
		return "", false
	}
	val, ok := u.Metadata[key].(string)
	return val, ok && val != ""
}

// Session tracks one refresh token lineage for a user. Exactly one refresh
// token hash is valid per session at any time; rotation replaces it
// atomically. A revoked session never transitions back to active.
type Session struct {
	bun.BaseModel    `bun:"table:sessions,alias:ses"`
	ID               uuid.UUID      `bun:"session_id,pk,nullzero,type:uuid" json:"session_id,omitempty"`
	UserID           uuid.UUID      `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	RefreshTokenHash string         `bun:"refresh_token_hash,notnull" json:"-"`
	TenantID         string         `bun:"tenant_id" json:"tenant_id,omitempty"`
	DeviceInfo       map[string]any `bun:"device_info,type:jsonb" json:"device_info,omitempty"`
	IPAddress        string         `bun:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt        time.Time      `bun:"expires_at,notnull" json:"expires_at"`
	Revoked          bool           `bun:"revoked,notnull,default:false" json:"revoked"`
	CreatedAt        *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the session is past its expiry. Expiry is derived
// from the clock, not a stored transition.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PasswordResetToken is a single-use opaque credential. A token with a
// non-nil UsedAt or past ExpiresAt is permanently unusable.
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumable reports whether the token can still be redeemed at now.
func (t *PasswordResetToken) Consumable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
