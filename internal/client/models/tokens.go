package models

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is issued, persisted and cleared as one unit.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresIn is the access token lifetime in seconds as reported by the
	// server. Informational only: expiry is discovered through 401 responses.
	ExpiresIn int64 `json:"expiresIn,omitempty"`
}

// Valid reports whether both tokens are present.
func (p *TokenPair) Valid() bool {
	return p != nil && p.AccessToken != "" && p.RefreshToken != ""
}

// AccessClaims is what the CLI shows about an access token.
type AccessClaims struct {
	Subject   string
	ExpiresAt time.Time
}

var ErrNotJWT = errors.New("access token is not a JWT")

// ParseAccessClaims decodes the claims of a JWT access token without
// verifying its signature. The result is for display, never for trust.
func ParseAccessClaims(token string) (*AccessClaims, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, errors.Join(ErrNotJWT, err)
	}

	out := &AccessClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
