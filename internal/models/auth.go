package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the access-token payload the edge validates. Token issuance
// belongs to the auth module; this service only verifies and reads claims.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into the caller identity services expect.
func (c *JWTClaims) Actor() Actor {
	return Actor{ID: c.UserID, Role: c.Role}
}
