package session

import (
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The service is the authority on validity; the client only uses exp to fail
// fast. ok is false for opaque tokens or tokens without exp.
func TokenExpiry(token string) (time.Time, bool) {
	claims, ok := unverifiedClaims(token)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenSubject returns the unverified sub claim, or "".
func TokenSubject(token string) string {
	claims, ok := unverifiedClaims(token)
	if !ok {
		return ""
	}
	return claims.Subject
}

func unverifiedClaims(token string) (jwt.RegisteredClaims, bool) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return claims, false
	}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return claims, false
	}
	return claims, true
}
