package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims the backend puts in its bearer tokens.
type Claims struct {
	UserID int    `json:"user_id,omitempty"`
	Phone  string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Token is a client-held bearer token. The client cannot verify the
// signature (the secret lives on the backend); it only inspects the claims
// to avoid sending a token the backend would reject as expired.
type Token struct {
	Raw    string
	Claims Claims
}

// ParseToken decodes a bearer token without verifying its signature.
func ParseToken(raw string) (*Token, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty token")
	}
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}
	return &Token{Raw: raw, Claims: claims}, nil
}

// Expired reports whether the token's expiry has passed. Tokens without an
// expiry claim never expire client-side.
func (t *Token) Expired() bool {
	if t.Claims.ExpiresAt == nil {
		return false
	}
	return time.Now().After(t.Claims.ExpiresAt.Time)
}

// AuthorizationHeader returns the value for the Authorization header.
func (t *Token) AuthorizationHeader() string {
	return "Bearer " + t.Raw
}
