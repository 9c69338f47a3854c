// Package httpctx carries the authenticated identity through request contexts.
package httpctx

import (
	"context"

	"reservo/authcore/internal/security"
)

type contextKey struct{ name string }

var claimsKey = contextKey{"access_claims"}

// WithClaims returns a context carrying the validated access token claims.
func WithClaims(ctx context.Context, claims *security.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims returns the access claims from context and true if set.
func GetClaims(ctx context.Context) (*security.AccessClaims, bool) {
	v, ok := ctx.Value(claimsKey).(*security.AccessClaims)
	return v, ok
}

// GetPrincipalID returns the authenticated principal's ID and true if set.
func GetPrincipalID(ctx context.Context) (string, bool) {
	claims, ok := GetClaims(ctx)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}

// GetSessionID returns the authenticated session's ID and true if set.
func GetSessionID(ctx context.Context) (string, bool) {
	claims, ok := GetClaims(ctx)
	if !ok {
		return "", false
	}
	return claims.SessionID, true
}
