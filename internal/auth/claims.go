package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the CRM session token shape. The user id travels in "sub".
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

func (c Claims) UserID() string { return c.Subject }
