// Package token verifies the JSON Web Tokens issued by the account
// system. This service never signs user tokens itself; it only checks
// them and extracts the owner identity.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the owner identity inside a verified token.
type Claims struct {
	OwnerID string `json:"ownerId"`
	jwt.RegisteredClaims
}

// JWTManager verifies tokens against the shared secret.
type JWTManager struct {
	secretKey []byte
}

// NewJWTManager creates a verifier for the given secret.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{secretKey: []byte(secret)}
}

// VerifyToken parses and validates tokenString and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.OwnerID == "" {
		return nil, errors.New("token carries no owner id")
	}
	return claims, nil
}

// Sign issues a token for ownerID. Only used by tooling and tests; the
// production issuer lives in the account system.
func (m *JWTManager) Sign(ownerID string, ttl time.Duration) (string, error) {
	claims := Claims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}
