package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHS256RoundTrip(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{HMACSecret: "test-secret"})
	require.NoError(t, err)

	token, err := SignClaimsHS256(Claims{
		Email: "ada@example.com",
		Roles: []string{"client"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, "test-secret")
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, []string{"client"}, claims.Roles)

	other, err := NewVerifier(VerifierConfig{HMACSecret: "wrong-secret"})
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{HMACSecret: "s"})
	require.NoError(t, err)
	token, err := SignHS256("user-1", nil, -time.Minute, "s")
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAudienceEnforced(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{HMACSecret: "s", Audience: "gurubook"})
	require.NoError(t, err)
	token, err := SignHS256("user-1", nil, time.Hour, "s")
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v, err := NewVerifier(VerifierConfig{JWKS: NewJWKSClient(srv.URL, time.Minute)})
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		Roles: []string{"guru"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "guru-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "guru-1", claims.Subject)

	hsOnly, err := NewVerifier(VerifierConfig{HMACSecret: "s"})
	require.NoError(t, err)
	_, err = hsOnly.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", tok)
	_, ok = BearerToken("Basic xyz")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}
