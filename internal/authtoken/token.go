// Package authtoken mints and validates the HS256 service tokens the proxy
// and any admin tooling use to authenticate to the central server.
package authtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"retlister/internal/models"
)

// DefaultTTL is how long a minted service token remains valid.
const DefaultTTL = 30 * 24 * time.Hour

// Claims is the token payload. Subject identifies the proxy instance or
// operator the token was issued to.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Issuer mints and validates service tokens with a single shared secret.
type Issuer struct {
	secret []byte
}

// NewIssuer builds an Issuer from the configured signing secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// Mint creates a signed token for subject, valid for ttl (DefaultTTL if
// ttl <= 0).
func (i *Issuer) Mint(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", models.NewInternalError("failed to sign service token", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method)
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, models.NewValidationError("invalid service token")
	}
	if !token.Valid {
		return nil, models.NewValidationError("invalid service token")
	}
	return claims, nil
}
