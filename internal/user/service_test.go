package user

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/cinelog/service-core-go/internal/user/entity"
	userrepo "github.com/ovaphlow/cinelog/service-core-go/internal/user/repo"
)

func newTestService(t *testing.T) (*UserService, *userrepo.MemoryRepo) {
	t.Helper()
	r := userrepo.NewMemoryRepo()
	svc, err := NewUserService(r, BcryptHasher{Cost: bcrypt.MinCost}, nil)
	require.NoError(t, err)
	return svc, r
}

type brokenRepo struct{ err error }

func (b brokenRepo) Create(context.Context, *entity.User) error { return b.err }
func (b brokenRepo) GetByEmail(context.Context, string) (*entity.User, error) {
	return nil, b.err
}
func (b brokenRepo) GetByID(context.Context, string) (*entity.User, error) { return nil, b.err }

func TestBcryptHasher_DefaultCost(t *testing.T) {
	h, err := BcryptHasher{}.Hash("Passw0rd!")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(h))
	require.NoError(t, err)
	assert.Equal(t, DefaultBcryptCost, cost)
	assert.True(t, BcryptHasher{}.Verify(h, "Passw0rd!"))
	assert.False(t, BcryptHasher{}.Verify(h, "passw0rd!"))
}

func TestRegister_CreatesUserRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, " alice@example.com ", "Passw0rd!", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.NotEqual(t, "Passw0rd!", u.PasswordHash)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct{ email, pw, name string }{
		{"", "Passw0rd!", "A"},
		{"not-an-email", "Passw0rd!", "A"},
		{"a@b.c", "short", "A"},
		{"a@b.c", "Passw0rd!", "  "},
	}
	for _, c := range cases {
		_, err := svc.Register(ctx, c.email, c.pw, c.name)
		assert.ErrorIs(t, err, ErrInvalidInput, "case %+v", c)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "Passw0rd!", "Alice")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice@example.com", "Other123!", "Alice 2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestVerify_Success(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Register(ctx, "alice@example.com", "Passw0rd!", "Alice")
	require.NoError(t, err)

	u, err := svc.Verify(ctx, "alice@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
}

func TestVerify_EnumerationResistant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice@example.com", "Passw0rd!", "Alice")
	require.NoError(t, err)

	_, wrongPw := svc.Verify(ctx, "alice@example.com", "nope-nope")
	_, unknown := svc.Verify(ctx, "bob@example.com", "Passw0rd!")
	_, empty := svc.Verify(ctx, "", "Passw0rd!")

	for _, e := range []error{wrongPw, unknown, empty} {
		require.ErrorIs(t, e, ErrInvalidCredentials)
		assert.Equal(t, wrongPw.Error(), e.Error())
	}
}

func TestVerify_EmailIsCaseSensitive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice@example.com", "Passw0rd!", "Alice")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "Alice@example.com", "Passw0rd!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerify_StorageErrorIsNotMaskedAsCredentials(t *testing.T) {
	boom := errors.New("connection refused")
	svc, err := NewUserService(brokenRepo{err: boom}, BcryptHasher{Cost: bcrypt.MinCost}, nil)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), "alice@example.com", "Passw0rd!")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
