package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubUserRepo struct {
	users       map[string]User
	companies   map[int64][]int64
	lastLoginID int64
}

func (r *stubUserRepo) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, ok := r.users[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *stubUserRepo) GetUserByID(ctx context.Context, id int64) (User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *stubUserRepo) ListUserCompanyIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.companies[userID], nil
}

func (r *stubUserRepo) TouchLastLogin(ctx context.Context, userID int64) error {
	r.lastLoginID = userID
	return nil
}

func newAuthTestService(t *testing.T) (*Service, *stubUserRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &stubUserRepo{
		users: map[string]User{
			"cfo@example.com": {ID: 42, Email: "cfo@example.com", PasswordHash: string(hash), IsActive: true},
		},
		companies: map[int64][]int64{42: {1, 7}},
	}
	issuer := NewTokenIssuer("0123456789abcdef0123456789abcdef", 15*time.Minute)
	return NewService(repo, issuer, client, time.Hour), repo
}

func TestLogin(t *testing.T) {
	svc, repo := newAuthTestService(t)
	ctx := context.Background()

	pair, user, err := svc.Login(ctx, "cfo@example.com", "s3cret-pw")
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(42), repo.lastLoginID)

	claims, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7}, claims.CompanyIDs)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthTestService(t)
	_, _, err := svc.Login(context.Background(), "cfo@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newAuthTestService(t)
	_, _, err := svc.Login(context.Background(), "nobody@example.com", "s3cret-pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newAuthTestService(t)
	ctx := context.Background()

	pair, _, err := svc.Login(ctx, "cfo@example.com", "s3cret-pw")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The presented token is consumed on rotation.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	svc, _ := newAuthTestService(t)
	ctx := context.Background()

	pair, _, err := svc.Login(ctx, "cfo@example.com", "s3cret-pw")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}

func TestRefreshGarbageToken(t *testing.T) {
	svc, _ := newAuthTestService(t)
	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}
