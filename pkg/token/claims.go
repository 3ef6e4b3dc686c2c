package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes the two halves of a token pair.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const RoleAdmin = "admin"

// Claims is the decoded payload of a signed token.
type Claims struct {
	Subject     string    `json:"sub"`
	TokenType   TokenType `json:"token_type"`
	Role        string    `json:"role,omitempty"`
	IsSuperuser bool      `json:"is_superuser,omitempty"`
	ExpiresAt   time.Time `json:"exp"`
}

// IsExpired reports whether the token is expired, treating anything that
// expires within the given buffer as already expired. Signature validity is
// not considered here.
func (c *Claims) IsExpired(buffer time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(c.ExpiresAt.Add(-buffer))
}

// IsAdmin is the single authorization predicate for admin-gated decisions.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin || c.IsSuperuser
}

// claimsFromMap converts raw JWT claims into the typed view.
// Missing sub or exp makes the token unusable.
func claimsFromMap(mc jwt.MapClaims) (*Claims, error) {
	sub, ok := mc["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrInvalidToken
	}

	exp, ok := mc["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	c := &Claims{
		Subject:   sub,
		ExpiresAt: time.Unix(int64(exp), 0),
	}

	if tt, ok := mc["token_type"].(string); ok {
		c.TokenType = TokenType(tt)
	}
	if role, ok := mc["role"].(string); ok {
		c.Role = role
	}
	if su, ok := mc["is_superuser"].(bool); ok {
		c.IsSuperuser = su
	}

	return c, nil
}
