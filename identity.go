package auth

import (
	"context"
	"net/mail"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// IdentityManager handles credential verification and user lookups. It owns
// every mutation of the user aggregate; callers never write users directly.
type IdentityManager struct {
	store  Storage
	hasher PasswordAuthenticator
	logger Logger
}

// IdentityOption customizes an IdentityManager.
type IdentityOption func(*IdentityManager)

// WithIdentityLogger overrides the manager logger.
func WithIdentityLogger(logger Logger) IdentityOption {
	return func(m *IdentityManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIdentityHasher overrides the password hasher.
func WithIdentityHasher(hasher PasswordAuthenticator) IdentityOption {
	return func(m *IdentityManager) {
		if hasher != nil {
			m.hasher = hasher
		}
	}
}

// NewIdentityManager creates a manager over the given storage adapter.
func NewIdentityManager(store Storage, opts ...IdentityOption) *IdentityManager {
	m := &IdentityManager{
		store:  store,
		hasher: NewBcryptHasher(DefaultBcryptCost),
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// CreateUser registers a new user. The raw password is hashed before storage
// and never persisted or logged. The duplicate pre-check is a fast path
// only; the storage uniqueness constraint is the real guarantee.
func (m *IdentityManager) CreateUser(ctx context.Context, identifier, password string, metadata map[string]any) (*User, error) {
	identifier = NormalizeIdentifier(identifier)

	if err := validation.Validate(identifier, validation.Required, validation.Length(3, 254)); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid identifier")
	}
	if password == "" {
		return nil, ErrNoEmptyString
	}

	if existing, err := m.store.FindUserByIdentifier(ctx, identifier); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check identifier availability")
	} else if existing != nil {
		return nil, ErrIdentifierInUse
	}

	hash, err := m.hasher.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := m.store.CreateUser(ctx, identifier, hash, metadata)
	if err != nil {
		if IsIdentifierInUseError(err) {
			return nil, ErrIdentifierInUse
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user")
	}

	return user, nil
}

// FindByIdentifier resolves a user against the primary identifier and any
// secondary identifiers embedded in metadata (email, phone). Returns
// (nil, nil) when no user matches; callers cannot assume which field matched.
func (m *IdentityManager) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil, nil
	}

	normalized := NormalizeIdentifier(trimmed)

	user, err := m.store.FindUserByIdentifier(ctx, normalized)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}
	if user != nil || normalized == trimmed {
		return user, nil
	}

	// the raw spelling may be stored verbatim in metadata
	user, err = m.store.FindUserByIdentifier(ctx, trimmed)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}
	return user, nil
}

// FindByID resolves a user by id, (nil, nil) when absent.
func (m *IdentityManager) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := m.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}
	return user, nil
}

// VerifyPassword compares the plaintext against the stored hash in constant
// time. It returns false, never an error, for a nil user or missing hash.
func (m *IdentityManager) VerifyPassword(user *User, plaintext string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return m.hasher.ComparePasswordAndHash(plaintext, user.PasswordHash) == nil
}

// HashPassword exposes the configured hasher for collaborators that rehash
// (password reset).
func (m *IdentityManager) HashPassword(password string) (string, error) {
	return m.hasher.HashPassword(password)
}

// UpdatePasswordHash replaces the stored password hash for a user.
func (m *IdentityManager) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, newHash string) error {
	if err := m.store.UpdatePassword(ctx, userID, newHash); err != nil {
		if hasTextCode(err, TextCodeUserNotFound) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password hash")
	}
	return nil
}

// NormalizeIdentifier canonicalizes natural keys so the same user resolves
// regardless of spelling: emails are lowercased, phone numbers are formatted
// E.164, everything else is trimmed.
func NormalizeIdentifier(identifier string) string {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return ""
	}

	if isEmail(trimmed) {
		return strings.ToLower(trimmed)
	}

	if looksLikePhone(trimmed) {
		if num, err := phonenumbers.Parse(trimmed, ""); err == nil && phonenumbers.IsValidNumber(num) {
			return phonenumbers.Format(num, phonenumbers.E164)
		}
	}

	return trimmed
}

func isEmail(identifier string) bool {
	if !strings.Contains(identifier, "@") {
		return false
	}
	_, err := mail.ParseAddress(identifier)
	return err == nil
}

func looksLikePhone(identifier string) bool {
	if !strings.HasPrefix(identifier, "+") {
		return false
	}
	for _, r := range identifier[1:] {
		if (r < '0' || r > '9') && r != ' ' && r != '-' && r != '(' && r != ')' {
			return false
		}
	}
	return len(identifier) > 7
}
