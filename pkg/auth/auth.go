// Package auth verifies the bearer tokens of API callers against a JWKS.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned for a missing, malformed or rejected token.
var ErrUnauthorized = errors.New("unauthorized")

const DefaultRefreshInterval = 15 * time.Minute

type VerifierConfig struct {
	// Issuer is the required iss claim. Empty accepts any issuer.
	Issuer string
	// Audience is the required aud claim. Empty accepts any audience.
	Audience string
	// AcceptableSkew tolerates clock drift on exp and nbf.
	AcceptableSkew time.Duration
}

// Claims is what the server keeps of a verified token.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

type Verifier struct {
	keys   jwk.Set
	config *VerifierConfig
	logger *zap.Logger
}

func NewVerifier(keys jwk.Set, config *VerifierConfig, logger *zap.Logger) *Verifier {
	if config == nil {
		config = &VerifierConfig{}
	}
	return &Verifier{
		keys:   keys,
		config: config,
		logger: logger,
	}
}

// NewJWKCache fetches jwkUrl once and keeps it refreshed in the background.
func NewJWKCache(ctx context.Context, jwkUrl string, refreshInterval time.Duration) (jwk.Set, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create jwk cache: %w", err)
	}

	if err := cache.Register(ctx, jwkUrl, jwk.WithConstantInterval(refreshInterval)); err != nil {
		return nil, fmt.Errorf("failed to register jwk location: %w", err)
	}

	// fetch once on startup so a bad URL fails fast
	if _, err := cache.Refresh(ctx, jwkUrl); err != nil {
		return nil, fmt.Errorf("failed to fetch on startup: %w", err)
	}

	return cache.CachedSet(jwkUrl)
}

// Verify checks the signature and the registered claims of tokenString.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys, err := filterKeySetForToken(tokenString, v.keys, v.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.config.AcceptableSkew),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}

	claims := &Claims{Subject: subject}
	if issuer, ok := token.Issuer(); ok {
		claims.Issuer = issuer
	}
	if exp, ok := token.Expiration(); ok {
		claims.ExpiresAt = exp
	}
	return claims, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrUnauthorized)
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: expected a bearer token", ErrUnauthorized)
	}
	return strings.TrimSpace(token), nil
}

// filterKeySetForToken keeps the keys whose algorithm matches the token header.
// Some providers publish several keys under one kid with different algorithms.
func filterKeySetForToken(tokenString string, keys jwk.Set, logger *zap.Logger) (jwk.Set, error) {
	if keys == nil {
		return nil, errors.New("no key set configured")
	}

	msg, err := jws.Parse([]byte(tokenString))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWS message: %w", err)
	}
	if len(msg.Signatures()) == 0 {
		return nil, errors.New("token has no signatures")
	}
	header := msg.Signatures()[0].ProtectedHeaders()

	tokenAlg, ok := header.Algorithm()
	if !ok {
		return nil, errors.New("token does not specify an algorithm")
	}

	filtered := jwk.NewSet()
	for i := 0; i < keys.Len(); i++ {
		key, ok := keys.Key(i)
		if !ok {
			continue
		}
		if keyAlg, ok := key.Algorithm(); ok && keyAlg == tokenAlg {
			_ = filtered.AddKey(key)
		}
	}
	if filtered.Len() == 0 {
		return nil, fmt.Errorf("no keys found in JWKS matching algorithm %s", tokenAlg)
	}
	logger.Sugar().Debugw("Filtered JWKS", "algorithm", tokenAlg, "original_count", keys.Len(), "filtered_count", filtered.Len())

	return filtered, nil
}
