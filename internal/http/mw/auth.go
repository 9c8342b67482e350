// Package mw contains HTTP middleware for the control API.
package mw

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmylchreest/refresh-agent/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserClaimsKey is the context key for caller claims.
	UserClaimsKey ContextKey = "user_claims"
)

// ScopeControl is the scope required to drive the agent.
const ScopeControl = "refresh:control"

// UserClaims identifies the caller of a control request.
type UserClaims struct {
	Subject string
	Scopes  []string
}

// HasScope checks if the caller has a scope.
// Supports wildcard patterns with trailing asterisk (e.g., "refresh:*").
func (c *UserClaims) HasScope(pattern string) bool {
	if c == nil || len(c.Scopes) == 0 {
		return false
	}

	if strings.HasSuffix(pattern, ":*") {
		prefix := strings.TrimSuffix(pattern, "*")
		for _, s := range c.Scopes {
			if strings.HasPrefix(s, prefix) {
				return true
			}
		}
		return false
	}

	for _, s := range c.Scopes {
		// A token granted "refresh:*" satisfies any refresh scope.
		if s == pattern || (strings.HasSuffix(s, ":*") && strings.HasPrefix(pattern, strings.TrimSuffix(s, "*"))) {
			return true
		}
	}
	return false
}

// GetUserClaims retrieves caller claims from context.
func GetUserClaims(ctx context.Context) *UserClaims {
	claims, ok := ctx.Value(UserClaimsKey).(*UserClaims)
	if !ok {
		return nil
	}
	return claims
}

// Subject returns the caller's subject, or "" when the request was not authenticated.
func Subject(ctx context.Context) string {
	if claims := GetUserClaims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Verifier *auth.Verifier

	// RequiredScope must be present in the token when set.
	RequiredScope string

	Logger *slog.Logger
}

// Auth returns middleware that requires a valid HS256 bearer token.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Verifier == nil {
				writeError(w, http.StatusUnauthorized, "authentication not configured")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			controlClaims, err := cfg.Verifier.VerifyToken(token)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Debug("token validation failed", "error", err)
				}
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims := &UserClaims{
				Subject: controlClaims.Subject,
				Scopes:  controlClaims.GetScopes(),
			}
			if cfg.RequiredScope != "" && !claims.HasScope(cfg.RequiredScope) {
				writeScopeError(w, cfg.RequiredScope)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeScopeError writes a missing-scope error response.
func writeScopeError(w http.ResponseWriter, scope string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   "insufficient_scope",
		"message": "The token does not grant control of the refresh agent",
		"scope":   scope,
	})
}
