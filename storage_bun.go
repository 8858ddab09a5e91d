package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// BunStorage is the relational Storage adapter. Sessions and reset tokens
// use conditional UPDATEs so rotation and consumption stay atomic without a
// transaction; user writes go through the users repository.
type BunStorage struct {
	db    *bun.DB
	users Users
}

var _ Storage = (*BunStorage)(nil)

// BunStorageOption customizes the adapter.
type BunStorageOption func(*BunStorage)

// WithUsersRepository replaces the default users repository, e.g. to enable
// deterministic ids.
func WithUsersRepository(users Users) BunStorageOption {
	return func(s *BunStorage) {
		if users != nil {
			s.users = users
		}
	}
}

// NewBunStorage builds the adapter over an existing bun database.
func NewBunStorage(db *bun.DB, opts ...BunStorageOption) *BunStorage {
	s := &BunStorage{
		db:    db,
		users: NewUsersRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// OpenSQLite opens an in-process SQLite database and registers the models.
// Meant for examples and integration tests; production hosts bring their own
// *bun.DB.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.RegisterModel((*User)(nil), (*Session)(nil), (*PasswordResetToken)(nil))

	return db, nil
}

// CreateTables creates the schema for the registered models. Hosts with a
// migration pipeline should skip this.
func (s *BunStorage) CreateTables(ctx context.Context) error {
	models := []any{(*User)(nil), (*Session)(nil), (*PasswordResetToken)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}
	return nil
}

func (s *BunStorage) CreateUser(ctx context.Context, identifier, passwordHash string, metadata map[string]any) (*User, error) {
	user := &User{
		Identifier:   identifier,
		PasswordHash: passwordHash,
		IsActive:     true,
		Metadata:     metadata,
	}

	created, err := s.users.Register(ctx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrIdentifierInUse
		}
		return nil, err
	}

	return created, nil
}

func (s *BunStorage) FindUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return s.users.FindByIdentifier(ctx, identifier)
}

func (s *BunStorage) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.users.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (s *BunStorage) UpdatePassword(ctx context.Context, userID uuid.UUID, newHash string) error {
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *BunStorage) CreateSession(ctx context.Context, session *Session) (*Session, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	if _, err := s.db.NewInsert().Model(session).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session")
	}

	return session, nil
}

func (s *BunStorage) FindSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	session := &Session{}
	err := s.db.NewSelect().Model(session).
		Where("?TableAlias.session_id = ?", sessionID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session")
	}

	return session, nil
}

// UpdateSessionToken is the rotation compare-and-swap: the UPDATE is keyed
// on the current hash, so exactly one concurrent rotation wins.
func (s *BunStorage) UpdateSessionToken(ctx context.Context, sessionID uuid.UUID, currentHash, newHash string, expiresAt time.Time) error {
	res, err := s.db.NewUpdate().Model((*Session)(nil)).
		Set("refresh_token_hash = ?", newHash).
		Set("expires_at = ?", expiresAt).
		Where("session_id = ?", sessionID).
		Where("refresh_token_hash = ?", currentHash).
		Where("revoked = ?", false).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate refresh token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read rotation result")
	}

	if affected == 0 {
		return ErrInvalidRefreshToken
	}

	return nil
}

func (s *BunStorage) RevokeSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	res, err := s.db.NewUpdate().Model((*Session)(nil)).
		Set("revoked = ?", true).
		Where("session_id = ?", sessionID).
		Where("revoked = ?", false).
		Exec(ctx)

	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read revocation result")
	}

	return affected > 0, nil
}

func (s *BunStorage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().Model((*Session)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)

	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete expired sessions")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read sweep result")
	}

	return int(affected), nil
}

func (s *BunStorage) CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (*PasswordResetToken, error) {
	token := &PasswordResetToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}

	if _, err := s.db.NewInsert().Model(token).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create reset token")
	}

	return token, nil
}

// ConsumePasswordResetToken marks the token used with a conditional UPDATE,
// then loads it. Concurrent redeemers race on the UPDATE; only one sees an
// affected row.
func (s *BunStorage) ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*PasswordResetToken, error) {
	res, err := s.db.NewUpdate().Model((*PasswordResetToken)(nil)).
		Set("used_at = ?", now).
		Where("token_hash = ?", tokenHash).
		Where("used_at IS NULL").
		Where("expires_at > ?", now).
		Exec(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume reset token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read consumption result")
	}

	if affected == 0 {
		return nil, nil
	}

	token := &PasswordResetToken{}
	err = s.db.NewSelect().Model(token).
		Where("?TableAlias.token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load consumed reset token")
	}

	return token, nil
}

// isUniqueViolation matches uniqueness errors across the dialects the
// adapter runs against (SQLite in tests, Postgres in production).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
