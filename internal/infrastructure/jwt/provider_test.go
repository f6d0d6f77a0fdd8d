package jwtinfra

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jobman-auth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, expiry time.Duration) *Provider {
	t.Helper()
	p, err := NewProvider(&config.Config{JWTSecret: "test-secret", JWTExpiry: expiry})
	require.NoError(t, err)
	return p
}

func TestNewProvider_RequiresSecret(t *testing.T) {
	_, err := NewProvider(&config.Config{})
	assert.Error(t, err)
}

func TestSignVerify_RoundTripsIdentity(t *testing.T) {
	p := newTestProvider(t, 0)

	signed, err := p.Sign(7, "ada@x.com", "Ada")
	require.NoError(t, err)

	claims, err := p.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.ID)
	assert.Equal(t, "ada@x.com", claims.Email)
	assert.Equal(t, "Ada", claims.Username)
	assert.Nil(t, claims.ExpiresAt)
}

func TestSign_SetsExpiryWhenConfigured(t *testing.T) {
	p := newTestProvider(t, time.Hour)

	signed, err := p.Sign(1, "a@b.com", "A")
	require.NoError(t, err)

	claims, err := p.Verify(signed)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestVerify_WrongSecret(t *testing.T) {
	signed, err := newTestProvider(t, 0).Sign(1, "a@b.com", "A")
	require.NoError(t, err)

	other, err := NewProvider(&config.Config{JWTSecret: "other-secret"})
	require.NoError(t, err)
	_, err = other.Verify(signed)
	assert.True(t, errors.Is(err, ErrInvalidCredential))
}

func TestVerify_Expired(t *testing.T) {
	p := newTestProvider(t, time.Minute)
	p.now = func() time.Time { return time.Now().Add(-time.Hour) }

	signed, err := p.Sign(1, "a@b.com", "A")
	require.NoError(t, err)

	_, err = p.Verify(signed)
	assert.True(t, errors.Is(err, ErrInvalidCredential))
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: 1})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestProvider(t, 0).Verify(signed)
	assert.True(t, errors.Is(err, ErrInvalidCredential))
}

func TestVerify_Garbage(t *testing.T) {
	_, err := newTestProvider(t, 0).Verify("not-a-real-token")
	assert.True(t, errors.Is(err, ErrInvalidCredential))
}
