package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	"github.com/NTA1210/learning-management-system-sub007/pkg/config"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
)

// AuthService validates access tokens issued by the auth module. Token
// issuance and session management live outside this service.
type AuthService struct {
	cfg config.JWTConfig
}

// NewAuthService constructs the auth service.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{cfg: cfg}
}

// ValidateToken parses and verifies an access token, returning its claims.
func (s *AuthService) ValidateToken(token string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token is missing identity claims")
	}
	return claims, nil
}
