package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerAcceptsMatchingToken(t *testing.T) {
	a := NewBearer("s3cret")
	claims, err := a.Verify("Bearer s3cret")
	require.NoError(t, err)
	assert.Nil(t, claims)
}

func TestBearerRejectsWrongToken(t *testing.T) {
	a := NewBearer("s3cret")
	_, err := a.Verify("Bearer wrong")
	assert.Error(t, err)
}

func TestBearerRejectsMissingPrefix(t *testing.T) {
	a := NewBearer("s3cret")
	_, err := a.Verify("s3cret")
	assert.Error(t, err)
}

func genRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestJWTAcceptsValidToken(t *testing.T) {
	key := genRSAKey(t)
	a := NewJWT(&key.PublicKey, "RS256", "gateway", "clients", 60*time.Second, true)

	claims := jwt.MapClaims{
		"sub": "user-1",
		"iss": "gateway",
		"aud": "clients",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	got, err := a.Verify("Bearer " + signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	key := genRSAKey(t)
	a := NewJWT(&key.PublicKey, "RS256", "", "", time.Second, true)

	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	_, err = a.Verify("Bearer " + signed)
	assert.Error(t, err)
}

func TestJWTRejectsWrongIssuer(t *testing.T) {
	key := genRSAKey(t)
	a := NewJWT(&key.PublicKey, "RS256", "expected-issuer", "", 60*time.Second, false)

	claims := jwt.MapClaims{"iss": "someone-else"}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	_, err = a.Verify("Bearer " + signed)
	assert.Error(t, err)
}

func TestJWTRejectsTokenSignedWithOtherKey(t *testing.T) {
	key := genRSAKey(t)
	other := genRSAKey(t)
	a := NewJWT(&key.PublicKey, "RS256", "", "", 60*time.Second, false)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{})
	signed, err := tok.SignedString(other)
	require.NoError(t, err)

	_, err = a.Verify("Bearer " + signed)
	assert.Error(t, err)
}
