// Package api implements the Vigor REST API using chi.
package api

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/cors"
)

// UserHeader names the request header that selects the acting user.
const UserHeader = "X-Vigor-User"

// DefaultUser is used when a request carries no UserHeader.
const DefaultUser = "local"

var userPattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,64}$`)

type ctxKey struct{}

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
// If enabled is true, requests must carry a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserMiddleware resolves the acting user from UserHeader and stores it in the
// request context.
func UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			user = DefaultUser
		}
		if !userPattern.MatchString(user) {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid "+UserHeader+" header"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

// UserFromContext returns the user stored by UserMiddleware, or DefaultUser.
func UserFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(ctxKey{}).(string); ok {
		return u
	}
	return DefaultUser
}

// CORSMiddleware allows browser clients from the given origins.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", UserHeader},
		MaxAge:         300,
	})
}
