package server

import (
	"log"
	"net/http"
	"strings"

	"reservo/authcore/internal/authz"
	"reservo/authcore/internal/security"
	"reservo/authcore/internal/server/httpctx"
)

const bearerPrefix = "bearer "

// extractBearer returns the Bearer token from the Authorization header, or ""
// if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// requireAuth validates the Bearer access token and stores its claims in the
// request context. Requests without a valid token get 401.
func requireAuth(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization")
				return
			}
			claims, err := tokens.ValidateAccess(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization")
				return
			}
			next.ServeHTTP(w, r.WithContext(httpctx.WithClaims(r.Context(), claims)))
		})
	}
}

// requireAction authorizes the authenticated principal for action via the
// policy evaluator. Denials get 403; evaluator failures fail closed.
func requireAction(evaluator *authz.Evaluator, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := httpctx.GetClaims(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization")
				return
			}
			allowed, err := evaluator.Authorize(r.Context(), authz.Input{
				Kind:        claims.Kind,
				Role:        claims.Role,
				Permissions: claims.Permissions,
				Action:      action,
			})
			if err != nil {
				log.Printf("server: authorize %s: %v", action, err)
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "permission_denied", "not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
