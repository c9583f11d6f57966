package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired inspects a JWT without verifying its signature and reports
// whether its exp claim has passed. Signature verification belongs to the
// server; the client only uses the claim to avoid doomed round trips.
func TokenExpired(token string) (bool, error) {
	parser := jwt.NewParser()

	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false, fmt.Errorf("parse token: %w", err)
	}

	if claims.ExpiresAt == nil {
		return false, nil
	}
	return claims.ExpiresAt.Before(time.Now()), nil
}
