package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/cinelog/service-core-go/internal/user/entity"
	userrepo "github.com/ovaphlow/cinelog/service-core-go/internal/user/repo"
	"github.com/ovaphlow/cinelog/service-core-go/pkg/utilities"
)

// DefaultBcryptCost is the work factor applied to new password hashes.
const DefaultBcryptCost = 10

const minPasswordLen = 8

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Repository is the persistence the user service depends on.
// Lookups report a missing row with sql.ErrNoRows.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidInput       = errors.New("invalid input")
)

// UserService verifies credentials and manages accounts.
type UserService struct {
	repo      Repository
	hasher    PasswordHasher
	logger    *zap.SugaredLogger
	dummyHash string
	now       func() time.Time
}

func NewUserService(r Repository, hasher PasswordHasher, logger *zap.SugaredLogger) (*UserService, error) {
	if hasher == nil {
		hasher = BcryptHasher{Cost: DefaultBcryptCost}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	// compared against when the email is unknown so both failure paths pay one hash
	dummy, err := hasher.Hash("cinelog-placeholder-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &UserService{repo: r, hasher: hasher, logger: logger, dummyHash: dummy, now: time.Now}, nil
}

// Verify checks an email/password pair. Unknown email and wrong password
// both yield ErrInvalidCredentials.
func (s *UserService) Verify(ctx context.Context, email, password string) (*entity.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		s.hasher.Verify(s.dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.hasher.Verify(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Register creates a USER account with a freshly hashed password.
func (s *UserService) Register(ctx context.Context, email, password, name string) (*entity.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	switch {
	case email == "" || !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	case len(password) < minPasswordLen:
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{
		ID:           utilities.NewSnowflakeID(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         entity.RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Infow("user registered", "user_id", u.ID)
	return u, nil
}

// Get returns the user by id.
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
