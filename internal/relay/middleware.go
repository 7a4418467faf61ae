package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sweetlink/sweetlink/internal/ratelimit"
	"github.com/sweetlink/sweetlink/internal/token"
)

type contextKey string

const subjectKey contextKey = "subject"

// BearerAuthMiddleware verifies a cli-scoped bearer token and stashes its
// subject on the request context.
func (s *Server) BearerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		payload, err := token.Verify(s.secret, raw, token.ScopeCLI)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, payload.Sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware enforces per-subject request limits on the
// authenticated REST surface.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, _ := r.Context().Value(subjectKey).(string)
			if subject == "" {
				subject = r.RemoteAddr
			}

			if !limiter.Allow(subject) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error":     "rate limit exceeded",
					"remaining": int(limiter.Tokens(subject)),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
