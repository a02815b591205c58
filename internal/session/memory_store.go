package session

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/cinelog/service-core-go/internal/session/entity"
)

// MemoryStore is an in-process TxStore. It backs tests and local runs
// without DATABASE_URL. Like the Postgres unique index, it refuses a second
// active session for one (user, device).
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

type memState struct {
	sessions map[string]entity.Session
	tokens   map[string]entity.RefreshToken // keyed by token hash
}

func newMemState() *memState {
	return &memState{
		sessions: map[string]entity.Session{},
		tokens:   map[string]entity.RefreshToken{},
	}
}

func (m *memState) clone() *memState {
	c := newMemState()
	for k, v := range m.sessions {
		c.sessions[k] = v
	}
	for k, v := range m.tokens {
		c.tokens[k] = v
	}
	return c
}

// memTx exposes the unlocked state to an InTx callback.
type memTx struct{ *memState }

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(memTx{s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, sess *entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CreateSession(ctx, sess)
}

func (s *MemoryStore) FindSession(ctx context.Context, id string) (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FindSession(ctx, id)
}

func (s *MemoryStore) FindSessionsByUser(ctx context.Context, userID string) ([]entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FindSessionsByUser(ctx, userID)
}

func (s *MemoryStore) LockUserDevice(context.Context, string, string) error { return nil }

func (s *MemoryStore) DeactivateSessions(ctx context.Context, userID, device string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeactivateSessions(ctx, userID, device)
}

func (s *MemoryStore) SetSessionActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SetSessionActive(ctx, id, active)
}

func (s *MemoryStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.TouchSession(ctx, id, at)
}

func (s *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteSession(ctx, id)
}

func (s *MemoryStore) CreateRefreshToken(ctx context.Context, t *entity.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CreateRefreshToken(ctx, t)
}

func (s *MemoryStore) FindRefreshToken(ctx context.Context, tokenHash string) (*entity.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FindRefreshToken(ctx, tokenHash)
}

func (s *MemoryStore) RevokeRefreshTokensForSession(ctx context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RevokeRefreshTokensForSession(ctx, sessionID)
}

func (s *MemoryStore) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteExpiredRefreshTokens(ctx, before)
}

func (m *memState) CreateSession(_ context.Context, sess *entity.Session) error {
	if _, ok := m.sessions[sess.ID]; ok {
		return errDuplicateKey
	}
	if sess.IsActive {
		for _, other := range m.sessions {
			if other.IsActive && other.UserID == sess.UserID && other.Device == sess.Device {
				return errDuplicateKey
			}
		}
	}
	m.sessions[sess.ID] = *sess
	return nil
}

func (m *memState) FindSession(_ context.Context, id string) (*entity.Session, error) {
	sess, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sess, nil
}

func (m *memState) FindSessionsByUser(_ context.Context, userID string) ([]entity.Session, error) {
	out := []entity.Session{}
	for _, sess := range m.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// LockUserDevice is a no-op: InTx already holds the store mutex.
func (m *memState) LockUserDevice(context.Context, string, string) error { return nil }

func (m *memState) DeactivateSessions(_ context.Context, userID, device string) (int64, error) {
	var n int64
	for id, sess := range m.sessions {
		if sess.IsActive && sess.UserID == userID && sess.Device == device {
			sess.IsActive = false
			m.sessions[id] = sess
			n++
		}
	}
	return n, nil
}

func (m *memState) SetSessionActive(_ context.Context, id string, active bool) error {
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	sess.IsActive = active
	m.sessions[id] = sess
	return nil
}

func (m *memState) TouchSession(_ context.Context, id string, at time.Time) error {
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	sess.LastActivity = at
	m.sessions[id] = sess
	return nil
}

func (m *memState) DeleteSession(_ context.Context, id string) error {
	delete(m.sessions, id)
	for hash, t := range m.tokens {
		if t.SessionID == id {
			delete(m.tokens, hash)
		}
	}
	return nil
}

func (m *memState) CreateRefreshToken(_ context.Context, t *entity.RefreshToken) error {
	if _, ok := m.tokens[t.TokenHash]; ok {
		return errDuplicateKey
	}
	if _, ok := m.sessions[t.SessionID]; !ok {
		return errMissingSession
	}
	m.tokens[t.TokenHash] = *t
	return nil
}

func (m *memState) FindRefreshToken(_ context.Context, tokenHash string) (*entity.RefreshToken, error) {
	t, ok := m.tokens[tokenHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (m *memState) RevokeRefreshTokensForSession(_ context.Context, sessionID string) (int64, error) {
	var n int64
	for hash, t := range m.tokens {
		if t.SessionID == sessionID && !t.Revoked {
			t.Revoked = true
			m.tokens[hash] = t
			n++
		}
	}
	return n, nil
}

func (m *memState) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for hash, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, hash)
			n++
		}
	}
	return n, nil
}
