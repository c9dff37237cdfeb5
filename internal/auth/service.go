package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials indicates a failed email/password check.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrRefreshRevoked indicates the refresh token is unknown or expired.
var ErrRefreshRevoked = errors.New("auth: refresh token revoked")

// Service orchestrates authentication flows.
type Service struct {
	repo       Repository
	issuer     *TokenIssuer
	redis      *redis.Client
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService constructs the auth service.
func NewService(repo Repository, issuer *TokenIssuer, client *redis.Client, refreshTTL time.Duration) *Service {
	return &Service{repo: repo, issuer: issuer, redis: client, refreshTTL: refreshTTL, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, User{}, ErrInvalidCredentials
		}
		return TokenPair{}, User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, User{}, ErrInvalidCredentials
	}
	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return TokenPair{}, User{}, err
	}
	_ = s.repo.TouchLastLogin(ctx, user.ID)
	return pair, user, nil
}

// Refresh rotates a refresh token, revoking the presented one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	key := refreshKey(refreshToken)
	raw, err := s.redis.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TokenPair{}, ErrRefreshRevoked
		}
		return TokenPair{}, err
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return TokenPair{}, ErrRefreshRevoked
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrRefreshRevoked
		}
		return TokenPair{}, err
	}
	return s.issueTokens(ctx, user)
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.redis.Del(ctx, refreshKey(refreshToken)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Authenticate parses a bearer token into claims.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	return s.issuer.Parse(token)
}

func (s *Service) issueTokens(ctx context.Context, user User) (TokenPair, error) {
	companies, err := s.repo.ListUserCompanyIDs(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	access, expiry, err := s.issuer.Issue(user, companies)
	if err != nil {
		return TokenPair{}, err
	}
	refresh := uuid.NewString()
	if err := s.redis.Set(ctx, refreshKey(refresh), fmt.Sprintf("%d", user.ID), s.refreshTTL).Err(); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(expiry).Seconds()),
	}, nil
}

func refreshKey(token string) string {
	return "auth:refresh:" + token
}
