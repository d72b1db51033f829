// ABOUTME: HS256 bearer tokens attached to every registry call
// ABOUTME: Tokens are cached and re-signed shortly before they expire

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DefaultTokenTTL is used when no lifetime is configured.
const DefaultTokenTTL = 15 * time.Minute

// TokenSource signs bearer tokens for the configured account and implements
// credentials.PerRPCCredentials.
type TokenSource struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource creates a token source whose tokens carry sub=subject.
func NewTokenSource(secret []byte, subject string, ttl time.Duration) *TokenSource {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenSource{
		secret:  secret,
		subject: subject,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Token returns a cached token, signing a fresh one once the cached token
// is within a tenth of its lifetime from expiry.
func (t *TokenSource) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.token != "" && now.Add(t.ttl/10).Before(t.expires) {
		return t.token, nil
	}

	expires := now.Add(t.ttl)
	claims := jwt.MapClaims{
		"sub": t.subject,
		"iat": now.Unix(),
		"exp": expires.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing ledger token: %w", err)
	}

	t.token = signed
	t.expires = expires
	return signed, nil
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (t *TokenSource) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	token, err := t.Token()
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials. The
// registry is reached over loopback or a tailnet, both already encrypted or local.
func (t *TokenSource) RequireTransportSecurity() bool {
	return false
}

// VerifyToken validates an HS256 token and returns its subject.
func VerifyToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}
