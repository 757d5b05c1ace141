package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleEmployer = "employer"
	RoleGateway  = "gateway"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

// Claims identify a collaborator. EmployerID scopes employer tokens to one
// household; gateway tokens carry none.
type Claims struct {
	Role       string `json:"role"`
	EmployerID string `json:"eid,omitempty"`
	jwt.RegisteredClaims
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

func GenerateToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	if !ValidRole(claims.Role) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	if secret == "" {
		return "", errors.New("token secret is empty")
	}
	now := time.Now()
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !ValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrUnknownRole)
	}
	return claims, nil
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	Subject    string
	Role       string
	EmployerID string
}

func (c *Claims) Principal() Principal {
	return Principal{Subject: c.Subject, Role: c.Role, EmployerID: c.EmployerID}
}
