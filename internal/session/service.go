package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/cinelog/service-core-go/internal/metrics"
	"github.com/ovaphlow/cinelog/service-core-go/internal/session/entity"
	"github.com/ovaphlow/cinelog/service-core-go/internal/user"
	userentity "github.com/ovaphlow/cinelog/service-core-go/internal/user/entity"
	"github.com/ovaphlow/cinelog/service-core-go/pkg/utilities"
)

const maxRefreshTokenLen = 256

// Verifier checks an email/password pair. Bad credentials must be reported
// as user.ErrInvalidCredentials.
type Verifier interface {
	Verify(ctx context.Context, email, password string) (*userentity.User, error)
}

// Service orchestrates the session lifecycle: login, logout, access-token
// refresh, owner-initiated termination and listing.
//
// It keeps no session state in memory; every decision reads the Store.
type Service struct {
	cfg      Config
	store    TxStore
	verifier Verifier
	tokens   *TokenIssuer
	logger   *zap.SugaredLogger
	metrics  *metrics.Auth
	now      func() time.Time
}

// LoginResult is everything a successful login hands to the transport.
type LoginResult struct {
	User             *userentity.User
	Session          entity.Session
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AccessGrant is the result of a refresh.
type AccessGrant struct {
	UserID      string
	SessionID   string
	AccessToken string
	ExpiresAt   time.Time
}

func NewService(cfg Config, store TxStore, verifier Verifier, logger *zap.SugaredLogger, m *metrics.Auth) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		tokens:   NewTokenIssuer(cfg.Secret, cfg.Issuer, cfg.AccessTTL),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Login verifies credentials, supersedes any active session on the same
// device and opens a new session with a fresh access/refresh pair.
func (s *Service) Login(ctx context.Context, email, password, device, remoteAddr string) (*LoginResult, error) {
	u, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			s.metrics.Login(metrics.ResultDenied)
			return nil, ErrInvalidCredentials
		}
		s.metrics.Login(metrics.ResultError)
		return nil, persistence("verify credentials", err)
	}

	now := s.now().UTC()
	device = normalizeDevice(device)
	res := &LoginResult{User: u}
	var superseded int64

	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.LockUserDevice(ctx, u.ID, device); err != nil {
			return persistence("lock user device", err)
		}
		n, err := tx.DeactivateSessions(ctx, u.ID, device)
		if err != nil {
			return persistence("deactivate sessions", err)
		}

		sess := entity.Session{
			ID:           utilities.NewKSUID(),
			UserID:       u.ID,
			Device:       device,
			IPAddress:    remoteAddr,
			LastActivity: now,
			CreatedAt:    now,
			IsActive:     true,
		}
		if err := tx.CreateSession(ctx, &sess); err != nil {
			return persistence("create session", err)
		}

		if err := s.issuePair(ctx, tx, res, sess, now); err != nil {
			// no active session may outlive a failed token issue
			if delErr := tx.DeleteSession(ctx, sess.ID); delErr != nil {
				s.logger.Debugw("compensating session delete failed", "session_id", sess.ID, "err", delErr)
			}
			return err
		}
		res.Session = sess
		superseded = n
		return nil
	})
	if err != nil {
		s.metrics.Login(metrics.ResultError)
		s.logger.Warnw("login failed", "user_id", u.ID, "err", err)
		if errors.Is(err, ErrTokenIssue) {
			return nil, err
		}
		return nil, persistence("login", err)
	}

	s.metrics.Login(metrics.ResultSuccess)
	s.metrics.Superseded(superseded)
	s.logger.Infow("login", "user_id", u.ID, "session_id", res.Session.ID, "device", device, "superseded", superseded)
	return res, nil
}

func (s *Service) issuePair(ctx context.Context, tx Store, res *LoginResult, sess entity.Session, now time.Time) error {
	access, accessExp, err := s.tokens.Issue(sess.UserID, sess.ID, now)
	if err != nil {
		return fmt.Errorf("%w: sign access token: %w", ErrTokenIssue, err)
	}
	plain, hash, err := NewRefreshToken()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenIssue, err)
	}
	rt := entity.RefreshToken{
		ID:        utilities.NewSnowflakeID(),
		TokenHash: hash,
		UserID:    sess.UserID,
		SessionID: sess.ID,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
	}
	if err := tx.CreateRefreshToken(ctx, &rt); err != nil {
		return persistence("create refresh token", err)
	}
	res.AccessToken = access
	res.AccessExpiresAt = accessExp
	res.RefreshToken = plain
	res.RefreshExpiresAt = rt.ExpiresAt
	return nil
}

// Logout deactivates the session and revokes its refresh tokens. It is
// idempotent and never fails from the caller's point of view; storage
// errors are logged and dropped.
func (s *Service) Logout(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	s.metrics.Logout()
	var revoked int64
	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.SetSessionActive(ctx, sessionID, false); err != nil {
			return err
		}
		n, err := tx.RevokeRefreshTokensForSession(ctx, sessionID)
		revoked = n
		return err
	})
	if err != nil {
		s.logger.Warnw("logout write failed", "session_id", sessionID, "err", err)
		return
	}
	s.logger.Infow("logout", "session_id", sessionID, "revoked_tokens", revoked)
}

// LogoutSessionID resolves the session a logout request may end. It accepts
// a correctly signed access token, even an expired one, or a known refresh
// token. It returns "" when neither identifies a session.
func (s *Service) LogoutSessionID(ctx context.Context, accessToken, refreshToken string) string {
	if accessToken != "" {
		if sid, ok := s.tokens.SessionID(accessToken); ok {
			return sid
		}
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > maxRefreshTokenLen {
		return ""
	}
	rt, err := s.store.FindRefreshToken(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warnw("logout token lookup failed", "err", err)
		}
		return ""
	}
	return rt.SessionID
}

// Refresh exchanges a refresh token for a new access token. The token must
// be known, unrevoked, unexpired and belong to an active session. The
// session's last activity is bumped. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	grant, err := s.refresh(ctx, refreshToken)
	switch {
	case err == nil:
		s.metrics.Refresh(metrics.ResultSuccess)
	case errors.Is(err, ErrInvalidRefreshToken):
		s.metrics.Refresh(metrics.ResultDenied)
	default:
		s.metrics.Refresh(metrics.ResultError)
		s.logger.Warnw("refresh failed", "err", err)
	}
	return grant, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > maxRefreshTokenLen {
		return nil, ErrInvalidRefreshToken
	}
	now := s.now().UTC()

	rt, err := s.store.FindRefreshToken(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, persistence("find refresh token", err)
	}
	if !rt.Usable(now) {
		return nil, ErrInvalidRefreshToken
	}

	sess, err := s.store.FindSession(ctx, rt.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, persistence("find session", err)
	}
	if !sess.IsActive || sess.UserID != rt.UserID {
		return nil, ErrInvalidRefreshToken
	}

	if err := s.store.TouchSession(ctx, sess.ID, now); err != nil {
		return nil, persistence("touch session", err)
	}
	access, exp, err := s.tokens.Issue(sess.UserID, sess.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: sign access token: %w", ErrTokenIssue, err)
	}
	return &AccessGrant{UserID: sess.UserID, SessionID: sess.ID, AccessToken: access, ExpiresAt: exp}, nil
}

// TerminateSession lets a user end one of their own sessions. Sessions of
// other users are reported as ErrSessionNotFound.
func (s *Service) TerminateSession(ctx context.Context, requestingUserID, sessionID string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		sess, err := tx.FindSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSessionNotFound
			}
			return persistence("find session", err)
		}
		if sess.UserID != requestingUserID {
			return ErrSessionNotFound
		}
		if err := tx.SetSessionActive(ctx, sessionID, false); err != nil {
			return persistence("deactivate session", err)
		}
		if _, err := tx.RevokeRefreshTokensForSession(ctx, sessionID); err != nil {
			return persistence("revoke refresh tokens", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.logger.Warnw("terminate session failed", "session_id", sessionID, "err", err)
			return persistence("terminate session", err)
		}
		return err
	}
	s.metrics.Termination()
	s.logger.Infow("session terminated", "user_id", requestingUserID, "session_id", sessionID)
	return nil
}

// ListActiveSessions returns the user's active sessions, most recent
// activity first.
func (s *Service) ListActiveSessions(ctx context.Context, userID string) ([]entity.Session, error) {
	all, err := s.store.FindSessionsByUser(ctx, userID)
	if err != nil {
		return nil, persistence("list sessions", err)
	}
	active := make([]entity.Session, 0, len(all))
	for _, sess := range all {
		if sess.IsActive {
			active = append(active, sess)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].LastActivity.After(active[j].LastActivity)
	})
	return active, nil
}

// Authenticate verifies an access token and checks that its session is
// still active.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (utilities.Principal, error) {
	claims, err := s.tokens.Verify(accessToken, s.now())
	if err != nil {
		return utilities.Principal{}, err
	}
	sess, err := s.store.FindSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utilities.Principal{}, ErrInvalidAccessToken
		}
		return utilities.Principal{}, persistence("find session", err)
	}
	if !sess.IsActive || sess.UserID != claims.UserID() {
		return utilities.Principal{}, ErrInvalidAccessToken
	}
	return utilities.Principal{UserID: sess.UserID, SessionID: sess.ID}, nil
}

// PruneExpired deletes refresh-token rows that expired more than the
// configured retention ago.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.cfg.RefreshRetention)
	n, err := s.store.DeleteExpiredRefreshTokens(ctx, cutoff)
	if err != nil {
		return 0, persistence("prune refresh tokens", err)
	}
	s.metrics.Pruned(n)
	return n, nil
}

// RunPruner calls PruneExpired every PruneInterval until ctx is done.
func (s *Service) RunPruner(ctx context.Context) {
	interval := s.cfg.PruneInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PruneExpired(ctx)
			if err != nil {
				s.logger.Warnw("prune refresh tokens failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Infow("pruned refresh tokens", "count", n)
			}
		}
	}
}

func normalizeDevice(device string) string {
	device = strings.TrimSpace(device)
	if device == "" {
		return "Unknown"
	}
	return device
}
