package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hoyn/internal/structures"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// IdentityProviderInterface extracts the caller's uid from a bearer token.
// Authenticate returns ok=false when the request carries no token.
type IdentityProviderInterface interface {
	Enabled() bool
	Authenticate(r *http.Request) (uid string, ok bool, err error)
	Issue(uid string, ttl time.Duration) (string, error)
}

type JWTIdentityProvider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewIdentityProvider(conf *structures.Config) IdentityProviderInterface {
	if conf.Auth.JWTSecret == "" {
		return &noopIdentity{}
	}
	return &JWTIdentityProvider{
		secret: []byte(conf.Auth.JWTSecret),
		issuer: conf.Auth.JWTIssuer,
		now:    time.Now,
	}
}

func (p *JWTIdentityProvider) Enabled() bool { return true }

func (p *JWTIdentityProvider) Issue(uid string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (p *JWTIdentityProvider) Authenticate(r *http.Request) (string, bool, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false, nil
	}
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return "", true, fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithTimeFunc(p.now))
	if err != nil || !token.Valid {
		return "", true, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", true, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, true, nil
}

type noopIdentity struct{}

func (n *noopIdentity) Enabled() bool { return false }

func (n *noopIdentity) Authenticate(_ *http.Request) (string, bool, error) {
	return "", false, nil
}

func (n *noopIdentity) Issue(_ string, _ time.Duration) (string, error) {
	return "", errors.New("identity provider disabled")
}
