package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by access tokens issued by the identity provider.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type VerifierConfig struct {
	// HMACSecret enables HS256 tokens.
	HMACSecret string
	// JWKS enables RS256 tokens resolved by kid.
	JWKS     *JWKSClient
	Issuer   string
	Audience string
}

// Verifier validates bearer tokens. At least one of HMACSecret or JWKS must be set.
type Verifier struct {
	secret   []byte
	jwks     *JWKSClient
	issuer   string
	audience string
	parser   *jwt.Parser
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" && cfg.JWKS == nil {
		return nil, errors.New("auth: HMAC secret or JWKS url required")
	}
	return &Verifier{
		secret:   []byte(secret),
		jwks:     cfg.JWKS,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256"})),
	}, nil
}

func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, ErrInvalidToken
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hs256 not enabled")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.jwks == nil {
			return nil, errors.New("rs256 not enabled")
		}
		kid, _ := t.Header["kid"].(string)
		return v.jwks.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
}

// SignHS256 issues a token; used for service-to-service calls and tests.
func SignHS256(subject string, roles []string, ttl time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return SignClaimsHS256(claims, secret)
}

func SignClaimsHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
