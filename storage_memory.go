package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is a Storage adapter backed by maps. It exists for tests,
// examples, and hosts that do not need durability; one mutex covers all
// state so the conditional updates keep their atomicity guarantees.
type MemoryStorage struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*User
	byIdent  map[string]uuid.UUID
	sessions map[uuid.UUID]*Session
	resets   map[string]*PasswordResetToken
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage builds an empty in-memory adapter.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[uuid.UUID]*User),
		byIdent:  make(map[string]uuid.UUID),
		sessions: make(map[uuid.UUID]*Session),
		resets:   make(map[string]*PasswordResetToken),
	}
}

func (s *MemoryStorage) CreateUser(ctx context.Context, identifier, passwordHash string, metadata map[string]any) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byIdent[identifier]; taken {
		return nil, ErrIdentifierInUse
	}

	now := time.Now()
	user := &User{
		ID:           uuid.New(),
		Identifier:   identifier,
		PasswordHash: passwordHash,
		IsActive:     true,
		Metadata:     metadata,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}

	s.users[user.ID] = user
	s.byIdent[identifier] = user.ID

	return copyUser(user), nil
}

func (s *MemoryStorage) FindUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byIdent[identifier]; ok {
		return copyUser(s.users[id]), nil
	}

	// secondary identifiers live in metadata
	for _, user := range s.users {
		if email, ok := user.MetadataString("email"); ok && email == identifier {
			return copyUser(user), nil
		}
		if phone, ok := user.MetadataString("phone"); ok && phone == identifier {
			return copyUser(user), nil
		}
	}

	return nil, nil
}

func (s *MemoryStorage) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyUser(s.users[id]), nil
}

func (s *MemoryStorage) UpdatePassword(ctx context.Context, userID uuid.UUID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	now := time.Now()
	user.PasswordHash = newHash
	user.UpdatedAt = &now

	return nil
}

// SetUserActive toggles the active flag; test and admin hook.
func (s *MemoryStorage) SetUserActive(userID uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[userID]; ok {
		user.IsActive = active
	}
}

func (s *MemoryStorage) CreateSession(ctx context.Context, session *Session) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copySession(session)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt == nil {
		now := time.Now()
		stored.CreatedAt = &now
	}

	s.sessions[stored.ID] = stored

	return copySession(stored), nil
}

func (s *MemoryStorage) FindSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySession(s.sessions[sessionID]), nil
}

func (s *MemoryStorage) UpdateSessionToken(ctx context.Context, sessionID uuid.UUID, currentHash, newHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Revoked || session.RefreshTokenHash != currentHash {
		return ErrInvalidRefreshToken
	}

	session.RefreshTokenHash = newHash
	session.ExpiresAt = expiresAt

	return nil
}

func (s *MemoryStorage) RevokeSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Revoked {
		return false, nil
	}

	session.Revoked = true

	return true, nil
}

func (s *MemoryStorage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}

	return removed, nil
}

func (s *MemoryStorage) CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (*PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	token := &PasswordResetToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: &now,
	}

	s.resets[tokenHash] = token

	return copyResetToken(token), nil
}

func (s *MemoryStorage) ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.resets[tokenHash]
	if !ok || !token.Consumable(now) {
		return nil, nil
	}

	used := now
	token.UsedAt = &used

	return copyResetToken(token), nil
}

func copyUser(user *User) *User {
	if user == nil {
		return nil
	}
	clone := *user
	if user.Metadata != nil {
		clone.Metadata = make(map[string]any, len(user.Metadata))
		for k, v := range user.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func copySession(session *Session) *Session {
	if session == nil {
		return nil
	}
	clone := *session
	if session.DeviceInfo != nil {
		clone.DeviceInfo = make(map[string]any, len(session.DeviceInfo))
		for k, v := range session.DeviceInfo {
			clone.DeviceInfo[k] = v
		}
	}
	return &clone
}

func copyResetToken(token *PasswordResetToken) *PasswordResetToken {
	if token == nil {
		return nil
	}
	clone := *token
	if token.UsedAt != nil {
		used := *token.UsedAt
		clone.UsedAt = &used
	}
	return &clone
}
