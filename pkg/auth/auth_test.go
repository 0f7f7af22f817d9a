package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testKeyID    = "test-key-id"
	testIssuer   = "https://issuer.example"
	testAudience = "reward-vault-authorizer"
)

func createTestJWKS(t *testing.T) (jwk.Set, *rsa.PrivateKey) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicKey, err := jwk.Import(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, publicKey.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, publicKey.Set(jwk.AlgorithmKey, jwa.RS256()))
	require.NoError(t, publicKey.Set(jwk.KeyUsageKey, "sig"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(publicKey))
	return set, privateKey
}

func signToken(t *testing.T, privateKey *rsa.PrivateKey, claims map[string]any) string {
	token := jwt.New()
	for k, v := range claims {
		require.NoError(t, token.Set(k, v))
	}

	key, err := jwk.Import(privateKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256()))

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), key))
	require.NoError(t, err)
	return string(signed)
}

func validClaims() map[string]any {
	return map[string]any{
		jwt.SubjectKey:    "project-7",
		jwt.IssuerKey:     testIssuer,
		jwt.AudienceKey:   []string{testAudience},
		jwt.IssuedAtKey:   time.Now().Unix(),
		jwt.ExpirationKey: time.Now().Add(time.Hour).Unix(),
	}
}

func TestVerifier_Verify(t *testing.T) {
	keys, privateKey := createTestJWKS(t)
	verifier := NewVerifier(keys, &VerifierConfig{Issuer: testIssuer, Audience: testAudience}, zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		claims, err := verifier.Verify(ctx, signToken(t, privateKey, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, "project-7", claims.Subject)
		assert.Equal(t, testIssuer, claims.Issuer)
		assert.False(t, claims.ExpiresAt.IsZero())
	})

	cases := []struct {
		name   string
		mutate func(c map[string]any)
	}{
		{"expired", func(c map[string]any) { c[jwt.ExpirationKey] = time.Now().Add(-time.Hour).Unix() }},
		{"wrong issuer", func(c map[string]any) { c[jwt.IssuerKey] = "https://other.example" }},
		{"wrong audience", func(c map[string]any) { c[jwt.AudienceKey] = []string{"someone-else"} }},
		{"no subject", func(c map[string]any) { delete(c, jwt.SubjectKey) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := validClaims()
			tc.mutate(claims)
			_, err := verifier.Verify(ctx, signToken(t, privateKey, claims))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnauthorized))
		})
	}

	t.Run("signed by another key", func(t *testing.T) {
		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = verifier.Verify(ctx, signToken(t, otherKey, validClaims()))
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestVerifier_NoKeys(t *testing.T) {
	_, privateKey := createTestJWKS(t)
	verifier := NewVerifier(nil, nil, zaptest.NewLogger(t))
	_, err := verifier.Verify(context.Background(), signToken(t, privateKey, validClaims()))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer   abc", "abc", false},
		{"", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
		{"Bearer ", "", true},
		{"Bearer", "", true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		got, err := BearerToken(r)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrUnauthorized, tc.header)
			continue
		}
		require.NoError(t, err, tc.header)
		assert.Equal(t, tc.want, got)
	}
}
