package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var updatePasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."id" = ?
RETURNING *;`

// Users exposes persistence for the user aggregate on top of the generic
// repository.
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type users struct {
	repository.Repository[*User]
	db            *bun.DB
	deterministic bool
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// UsersOption customizes the users repository.
type UsersOption func(*users)

// WithDeterministicIDs derives user ids from the identifier via hashid
// instead of random UUIDs. Useful when several services must agree on user
// ids without coordination.
func WithDeterministicIDs() UsersOption {
	return func(u *users) {
		u.deterministic = true
	}
}

// NewUsersRepository builds the users repository over a bun database.
func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "identifier"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	a.prepareDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return a.FindByIdentifierTx(ctx, a.db, identifier)
}

// FindByIdentifierTx matches the primary identifier column first, then the
// email and phone keys inside metadata. (nil, nil) when nothing matches.
func (a *users) FindByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil, nil
	}

	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.identifier = ?", trimmed).
		WhereOr("?TableAlias.metadata ->> 'email' = ?", trimmed).
		WhereOr("?TableAlias.metadata ->> 'phone' = ?", trimmed).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, updatePasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) prepareDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil && a.deterministic {
		if id, err := hashid.NewUUID(record.Identifier); err == nil {
			record.ID = id
		}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
