// Package tokens issues and verifies HS256 access tokens for the API.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ravikumarmistry/quix/pkg/middleware"
)

var ErrNoSecret = errors.New("tokens: signing secret is empty")

// Manager signs and verifies tokens with a shared secret.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Manager{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed access token for subject. Extra claims are merged
// in but cannot override the registered ones.
func (m *Manager) Issue(subject string, extra map[string]any) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims["sub"] = subject
	claims["iss"] = m.issuer
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(m.ttl).Unix()

	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(m.secret)
}

// Verify parses raw and checks its signature, expiry and issuer.
func (m *Manager) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("tokens: unexpected claims type")
	}
	return token(claims), nil
}

type token jwt.MapClaims

// Claims decodes the token claims into v.
func (t token) Claims(v interface{}) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
