package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/service"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	userIDKey contextKey = "user_id"
)

type AuthMiddleware struct {
	tokens *service.TokenService
	logger *logrus.Logger
}

func NewAuthMiddleware(tokens *service.TokenService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// RequireAuth verifies the bearer access token and puts the user id on the
// request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondUnauthorized(w, "Missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondUnauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.tokens.Parse(parts[1], service.AccessToken)
		if err != nil {
			m.logger.WithError(err).Debug("Access token verification failed")
			m.respondUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, userIDKey, claims.UserID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user id set by RequireAuth.
func UserIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(userIDKey).(uint64)
	return id, ok
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
