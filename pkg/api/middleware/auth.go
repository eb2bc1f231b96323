// Package middleware provides HTTP middleware for the arca API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/auth"
)

// Context key type for storing the request principal
type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFromContext retrieves the authenticated principal from the
// request context. Requests that carried no token resolve to
// auth.Anonymous, so handlers can always consult the oracle without a nil
// check.
func PrincipalFromContext(ctx context.Context) auth.Principal {
	p, ok := ctx.Value(principalContextKey).(auth.Principal)
	if !ok {
		return auth.Anonymous
	}
	return p
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// Principal resolves the caller identity for every request.
//
// A valid Bearer token puts its principal in the request context. No token
// resolves to auth.Anonymous and the request continues; whether anonymous
// access is allowed is the authorization oracle's call, made per action in
// the handlers. A token that is present but invalid or expired is rejected
// with 401 so the caller learns the credential is bad instead of silently
// downgrading to anonymous.
//
// jwtService may be nil when authentication is disabled; every request is
// anonymous then.
func Principal(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.Anonymous

			tokenString, ok := extractBearerToken(r)
			if ok && jwtService != nil {
				claims, err := jwtService.ValidateAccessToken(tokenString)
				if err != nil {
					writeUnauthorized(w, "invalid or expired token")
					return
				}
				principal = claims.Principal()
			}

			if lc := logger.FromContext(r.Context()); lc != nil {
				lc.WithPrincipal(principal.Subject)
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 with the API error body. Duplicated from
// the handlers package to keep the import direction handlers -> middleware.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  http.StatusUnauthorized,
		"message": message,
	})
}
