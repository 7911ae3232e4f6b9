package backend

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// KeyRole returns the "role" claim of a project API key (anon, service_role).
// The signature is not verified: the key is our own credential and only
// its declared role is of interest.
func KeyRole(apiKey string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(apiKey, claims); err != nil {
		return "", fmt.Errorf("parse api key: %w", err)
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return "", fmt.Errorf("api key has no role claim")
	}
	return role, nil
}
