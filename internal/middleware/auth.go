// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/onnwee/urbanscape/internal/auth"
)

// TokenValidator validates a bearer token and returns the authenticated user.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.User, error)
}

// Auth creates middleware that extracts the user from a Bearer token in the
// Authorization header and stores it in the request context. Requests
// without a token pass through anonymously; handlers decide per route
// whether an authenticated user is required. An invalid or expired token is
// rejected with 401 rather than silently downgraded to anonymous.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeAuthError(w, "Authorization header must use the Bearer scheme")
				return
			}

			user, err := validator.ValidateToken(token)
			if err != nil {
				writeAuthError(w, "Invalid or expired token")
				return
			}

			ctx := auth.WithUser(r.Context(), user)
			ctx = SetUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"auth_failed","message":"` + message + `"}}`))
}
