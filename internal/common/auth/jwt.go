// internal/common/auth/jwt.go
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"localpro-backend/internal/common/config"
)

// Role values carried in the token. Issuance happens in the accounts
// service; this service only verifies.
const (
	RoleCustomer   = "customer"
	RoleTechnician = "technician"
	RoleAdmin      = "admin"
)

// Claims are the token claims this service cares about.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// OwnerID returns the account id the token was issued for.
func (c *Claims) OwnerID() string {
	return c.Subject
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
	}
}

// VerifyToken parses and validates a raw token string.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return claims, nil
}

// VerifyAuthorizationHeader extracts and validates a "Bearer <token>" header value.
func (v *Verifier) VerifyAuthorizationHeader(header string) (*Claims, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("authorization header is not a bearer token")
	}
	return v.VerifyToken(strings.TrimSpace(strings.TrimPrefix(header, prefix)))
}
