package repo

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ovaphlow/cinelog/service-core-go/internal/user/entity"
)

// MemoryRepo is an in-process user store with the same error contract as
// UserRepo (sql.ErrNoRows, ErrDuplicate). Used by tests and by cmd/api
// when DATABASE_URL is unset.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]*entity.User
	byEmail map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]*entity.User{}, byEmail: map[string]string{}}
}

func (r *MemoryRepo) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return ErrDuplicate
	}
	cp := *u
	r.byID[u.ID] = &cp
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *MemoryRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}
