package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	jwttoken "verity/internal/jwt_token"
	"verity/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// RequireAuth authenticates the bearer token and places the caller's id and
// admin flag on the request context.
func RequireAuth(validator TokenValidator, adminRole string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				writeStatus(w, http.StatusUnauthorized, "unauthorized", "Invalid token subject")
				return
			}

			ctx = requestcontext.WithUserID(ctx, userID)
			ctx = requestcontext.WithAdmin(ctx, adminRole != "" && claims.HasRole(adminRole))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers without the admin role. It must run after RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.IsAdmin(ctx) {
				logger.WarnContext(ctx, "admin route denied",
					"user_id", requestcontext.UserID(ctx),
					"request_id", requestcontext.RequestID(ctx),
				)
				writeStatus(w, http.StatusForbidden, "forbidden", "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeStatus(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","error_description":"` + description + `"}`))
}
