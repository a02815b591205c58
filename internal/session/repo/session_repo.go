package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/cinelog/service-core-go/internal/session"
	"github.com/ovaphlow/cinelog/service-core-go/internal/session/entity"
)

// SessionRepo is the Postgres implementation of session.TxStore.
type SessionRepo struct {
	queries
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{queries: queries{db: db}, db: db}
}

// EnsureTables creates the sessions and refresh_tokens tables if not exists.
// The users table must exist first.
func (r *SessionRepo) EnsureTables(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  device TEXT NOT NULL,
  ip_address TEXT NOT NULL DEFAULT '',
  last_activity TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  is_active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE UNIQUE INDEX IF NOT EXISTS sessions_user_device_active_uniq ON sessions (user_id, device) WHERE is_active;
CREATE INDEX IF NOT EXISTS sessions_user_last_activity_idx ON sessions (user_id, last_activity DESC);

CREATE TABLE IF NOT EXISTS refresh_tokens (
  id TEXT PRIMARY KEY,
  token_hash TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  expires_at TIMESTAMPTZ NOT NULL,
  revoked BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS refresh_tokens_session_idx ON refresh_tokens (session_id);
CREATE INDEX IF NOT EXISTS refresh_tokens_expires_idx ON refresh_tokens (expires_at);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// InTx runs fn inside a database transaction. The transaction is rolled
// back if fn returns an error or panics.
func (r *SessionRepo) InTx(ctx context.Context, fn func(tx session.Store) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(queries{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queries runs against either the pool or an open transaction.
type queries struct {
	db sqlx.ExtContext
}

const sessionColumns = `id, user_id, device, ip_address, last_activity, created_at, is_active`

func (q queries) CreateSession(ctx context.Context, s *entity.Session) error {
	const stmt = `INSERT INTO sessions (id, user_id, device, ip_address, last_activity, created_at, is_active)
		VALUES (:id, :user_id, :device, :ip_address, :last_activity, :created_at, :is_active)`
	_, err := sqlx.NamedExecContext(ctx, q.db, stmt, s)
	return err
}

// FindSession returns the session by id or sql.ErrNoRows.
func (q queries) FindSession(ctx context.Context, id string) (*entity.Session, error) {
	var s entity.Session
	if err := sqlx.GetContext(ctx, q.db, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (q queries) FindSessionsByUser(ctx context.Context, userID string) ([]entity.Session, error) {
	out := []entity.Session{}
	const stmt = `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id=$1 ORDER BY last_activity DESC, id DESC`
	if err := sqlx.SelectContext(ctx, q.db, &out, stmt, userID); err != nil {
		return nil, err
	}
	return out, nil
}

// LockUserDevice takes a transaction-scoped advisory lock on (userID, device).
// A concurrent login for the same pair waits here until the holder commits,
// so its DeactivateSessions sees the holder's new session.
func (q queries) LockUserDevice(ctx context.Context, userID, device string) error {
	_, err := q.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '/' || $2))`, userID, device)
	return err
}

func (q queries) DeactivateSessions(ctx context.Context, userID, device string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE sessions SET is_active=FALSE WHERE user_id=$1 AND device=$2 AND is_active`, userID, device)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q queries) SetSessionActive(ctx context.Context, id string, active bool) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sessions SET is_active=$2 WHERE id=$1`, id, active)
	return err
}

func (q queries) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sessions SET last_activity=$2 WHERE id=$1`, id, at)
	return err
}

func (q queries) DeleteSession(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	return err
}

func (q queries) CreateRefreshToken(ctx context.Context, t *entity.RefreshToken) error {
	const stmt = `INSERT INTO refresh_tokens (id, token_hash, user_id, session_id, expires_at, revoked, created_at)
		VALUES (:id, :token_hash, :user_id, :session_id, :expires_at, :revoked, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, q.db, stmt, t)
	return err
}

// FindRefreshToken looks a token up by its hash or returns sql.ErrNoRows.
func (q queries) FindRefreshToken(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	var t entity.RefreshToken
	const stmt = `SELECT id, token_hash, user_id, session_id, expires_at, revoked, created_at
		FROM refresh_tokens WHERE token_hash=$1`
	if err := sqlx.GetContext(ctx, q.db, &t, stmt, tokenHash); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) RevokeRefreshTokensForSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked=TRUE WHERE session_id=$1 AND NOT revoked`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q queries) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ session.TxStore = (*SessionRepo)(nil)
