package session

import (
	"context"
	"time"

	"github.com/ovaphlow/cinelog/service-core-go/internal/session/entity"
)

// Store abstracts persistence for sessions and refresh tokens.
//
// Lookups report a missing row with sql.ErrNoRows. Bulk updates return the
// number of rows they changed and are no-ops when nothing matches.
type Store interface {
	CreateSession(ctx context.Context, s *entity.Session) error
	FindSession(ctx context.Context, id string) (*entity.Session, error)
	// FindSessionsByUser returns every session of the user, most recent
	// activity first.
	FindSessionsByUser(ctx context.Context, userID string) ([]entity.Session, error)
	// LockUserDevice serialises logins for (userID, device) until the
	// enclosing transaction ends. Outside InTx it may be a no-op.
	LockUserDevice(ctx context.Context, userID, device string) error
	// DeactivateSessions flips every active session of (userID, device) to inactive.
	DeactivateSessions(ctx context.Context, userID, device string) (int64, error)
	SetSessionActive(ctx context.Context, id string, active bool) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	// DeleteSession is only used to compensate a failed login.
	DeleteSession(ctx context.Context, id string) error

	CreateRefreshToken(ctx context.Context, t *entity.RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*entity.RefreshToken, error)
	RevokeRefreshTokensForSession(ctx context.Context, sessionID string) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

// TxStore is a Store that can run several writes atomically. If fn returns
// an error nothing it wrote is kept.
type TxStore interface {
	Store
	InTx(ctx context.Context, fn func(tx Store) error) error
}
