package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/cinelog/service-core-go/internal/user/entity"
)

// ErrDuplicate is returned by Create when the email is already registered.
var ErrDuplicate = errors.New("duplicate user")

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'USER' CHECK (role IN ('USER','ADMIN')),
  avatar_url TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, email, password_hash, name, role, avatar_url, created_at)
		VALUES (:id, :email, :password_hash, :name, :role, :avatar_url, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByEmail returns a user matched by exact email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT id, email, password_hash, name, role, avatar_url, created_at FROM users WHERE email=$1`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	const q = `SELECT id, email, password_hash, name, role, avatar_url, created_at FROM users WHERE id=$1`
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}
