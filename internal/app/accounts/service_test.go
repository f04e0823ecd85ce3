package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/knppkp/pollboard/internal/domain"
	"github.com/knppkp/pollboard/internal/platform/ids"
	"github.com/knppkp/pollboard/internal/platform/tokens"
)

type memoryUserRepo struct {
	users map[domain.UserID]domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[domain.UserID]domain.User)}
}

func (r *memoryUserRepo) Create(_ context.Context, u domain.User) error {
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return domain.ErrEmailTaken
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *memoryUserRepo) FindByID(_ context.Context, id domain.UserID) (domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *memoryUserRepo) List(_ context.Context) ([]domain.User, error) {
	result := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		result = append(result, u)
	}
	return result, nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestService() (*Service, *memoryUserRepo, *tokens.Issuer) {
	repo := newMemoryUserRepo()
	issuer := tokens.NewIssuer("test-secret", time.Hour)
	svc := NewService(repo, issuer, fixedClock{now: time.Now()}, ids.NewGenerator())
	return svc, repo, issuer
}

func TestService_Register_WhenValid_ShouldStoreHashedPassword(t *testing.T) {
	svc, repo, _ := newTestService()

	user, err := svc.Register(context.Background(), "Ann", "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Empty(t, user.PasswordHash)

	stored, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))
}

func TestService_Register_WhenFieldMissing_ShouldReturnErrInvalidInput(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "", "ann@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(context.Background(), "Ann", "", "secret1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(context.Background(), "Ann", "ann@example.com", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_Register_WhenEmailTaken_ShouldReturnErrEmailTaken(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "Ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "Other Ann", "ann@example.com", "secret2")
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestService_Login_WhenCredentialsValid_ShouldReturnUserAndToken(t *testing.T) {
	svc, _, issuer := newTestService()

	registered, err := svc.Register(context.Background(), "Ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	user, token, err := svc.Login(context.Background(), "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Empty(t, user.PasswordHash)
	require.NotEmpty(t, token)

	subject, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, subject)
}

func TestService_Login_WhenPasswordWrong_ShouldReturnErrInvalidCredentials(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "Ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "ann@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Login_WhenUserUnknown_ShouldReturnErrInvalidCredentials(t *testing.T) {
	svc, _, _ := newTestService()

	// Unknown email and bad password answer the same; no account probing.
	_, _, err := svc.Login(context.Background(), "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_GetUser_ShouldNeverExposePasswordHash(t *testing.T) {
	svc, _, _ := newTestService()

	registered, err := svc.Register(context.Background(), "Ann", "ann@example.com", "secret1")
	require.NoError(t, err)

	user, err := svc.GetUser(context.Background(), registered.ID)
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)

	users, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}
}
