package repo

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/cinelog/service-core-go/internal/session"
	"github.com/ovaphlow/cinelog/service-core-go/internal/session/entity"
	"github.com/ovaphlow/cinelog/service-core-go/internal/user"
	userentity "github.com/ovaphlow/cinelog/service-core-go/internal/user/entity"
	userrepo "github.com/ovaphlow/cinelog/service-core-go/internal/user/repo"
	"github.com/ovaphlow/cinelog/service-core-go/pkg/utilities"
)

// Runs only when DATABASE_URL points at a disposable Postgres.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, userrepo.NewUserRepo(db).EnsureTable(ctx))
	require.NoError(t, NewSessionRepo(db).EnsureTables(ctx))
	return db
}

func seedUser(t *testing.T, db *sqlx.DB) string {
	t.Helper()
	u := &userentity.User{
		ID:           utilities.NewSnowflakeID(),
		Email:        utilities.NewKSUID() + "@example.test",
		PasswordHash: "x",
		Name:         "test",
		Role:         userentity.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, userrepo.NewUserRepo(db).Create(context.Background(), u))
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM users WHERE id=$1`, u.ID)
	})
	return u.ID
}

func newSession(userID, device string, at time.Time) *entity.Session {
	return &entity.Session{
		ID:           utilities.NewKSUID(),
		UserID:       userID,
		Device:       device,
		IPAddress:    "10.0.0.1",
		LastActivity: at,
		CreatedAt:    at,
		IsActive:     true,
	}
}

func TestSessionRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	older := newSession(userID, "Chrome/Linux", now.Add(-time.Hour))
	newer := newSession(userID, "Firefox/Windows", now)
	require.NoError(t, r.CreateSession(ctx, older))
	require.NoError(t, r.CreateSession(ctx, newer))

	list, err := r.FindSessionsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	n, err := r.DeactivateSessions(ctx, userID, "Chrome/Linux")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := r.FindSession(ctx, older.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.NoError(t, r.TouchSession(ctx, newer.ID, now.Add(time.Minute)))
	got, err = r.FindSession(ctx, newer.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(now.Add(time.Minute)))

	_, err = r.FindSession(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionRepo_RefreshTokens(t *testing.T) {
	db := openTestDB(t)
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	s := newSession(userID, "Chrome/Linux", now)
	require.NoError(t, r.CreateSession(ctx, s))

	_, hash, err := session.NewRefreshToken()
	require.NoError(t, err)
	rt := &entity.RefreshToken{
		ID:        utilities.NewSnowflakeID(),
		TokenHash: hash,
		UserID:    userID,
		SessionID: s.ID,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, r.CreateRefreshToken(ctx, rt))

	got, err := r.FindRefreshToken(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.SessionID)
	assert.False(t, got.Revoked)

	n, err := r.RevokeRefreshTokensForSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = r.RevokeRefreshTokensForSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = r.DeleteExpiredRefreshTokens(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	_, err = r.FindRefreshToken(ctx, hash)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionRepo_InTxRollsBack(t *testing.T) {
	db := openTestDB(t)
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db)
	s := newSession(userID, "Safari/macOS", time.Now().UTC())

	boom := errors.New("boom")
	err := r.InTx(ctx, func(tx session.Store) error {
		require.NoError(t, tx.CreateSession(ctx, s))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = r.FindSession(ctx, s.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionRepo_OneActiveSessionPerDevice(t *testing.T) {
	db := openTestDB(t)
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db)
	now := time.Now().UTC()

	require.NoError(t, r.CreateSession(ctx, newSession(userID, "Chrome/Linux", now)))
	assert.Error(t, r.CreateSession(ctx, newSession(userID, "Chrome/Linux", now)))

	inactive := newSession(userID, "Chrome/Linux", now)
	inactive.IsActive = false
	assert.NoError(t, r.CreateSession(ctx, inactive))
}

func TestSessionRepo_ConcurrentLoginsSameDevice(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	users, err := user.NewUserService(userrepo.NewUserRepo(db), user.BcryptHasher{Cost: bcrypt.MinCost}, nil)
	require.NoError(t, err)
	email := utilities.NewKSUID() + "@example.test"
	u, err := users.Register(ctx, email, "Passw0rd!", "test")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM users WHERE id=$1`, u.ID)
	})

	cfg := session.DefaultConfig()
	cfg.Secret = []byte(strings.Repeat("k", 32))
	svc := session.NewService(cfg, NewSessionRepo(db), users, nil, nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Login(ctx, email, "Passw0rd!", "Chrome/Linux", "10.0.0.1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	active, err := svc.ListActiveSessions(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
