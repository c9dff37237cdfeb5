package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	user := User{ID: 42, Email: "cfo@example.com", IsSuperUser: true}

	raw, expiry, err := issuer.Issue(user, []int64{1, 7})
	require.NoError(t, err)
	assert.True(t, expiry.After(time.Now()))

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "cfo@example.com", claims.Email)
	assert.Equal(t, []int64{1, 7}, claims.CompanyIDs)
	assert.True(t, claims.SuperUser)
}

func TestParseExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	issuer.WithNow(func() time.Time { return time.Now().Add(-time.Hour) })

	raw, _, err := issuer.Issue(User{ID: 1}, nil)
	require.NoError(t, err)

	issuer.WithNow(time.Now)
	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	raw, _, err := issuer.Issue(User{ID: 1}, nil)
	require.NoError(t, err)

	other := NewTokenIssuer("ffffffffffffffffffffffffffffffff", 15*time.Minute)
	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseGarbage(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	_, err := issuer.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
