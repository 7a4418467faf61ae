// Package relay implements the session/command bridge: the registry of
// connected browser sessions, the /bridge websocket endpoint for both
// legs, and the authenticated HTTP surface.
package relay

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sweetlink/sweetlink/internal/ratelimit"
)

// Server holds the relay's shared dependencies.
type Server struct {
	registry *Registry
	secret   string
	adminKey string
	limiter  *ratelimit.Limiter
}

// NewServer wires a relay around a registry and the shared signing secret.
// adminKey guards the CLI token exchange; empty disables the endpoint.
func NewServer(registry *Registry, secret, adminKey string) *Server {
	return &Server{
		registry: registry,
		secret:   secret,
		adminKey: adminKey,
		limiter:  ratelimit.NewLimiter(600, 20),
	}
}

// Registry exposes the session registry, mainly for tests.
func (s *Server) Registry() *Registry {
	return s.registry
}

// SetupRoutes configures the relay's HTTP routes.
func (s *Server) SetupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc(BridgePath, s.HandleBridge).Methods("GET")
	r.HandleFunc("/healthz", s.HandleHealth).Methods("GET")

	authed := r.PathPrefix("").Subrouter()
	authed.Use(s.BearerAuthMiddleware, RateLimitMiddleware(s.limiter))
	authed.HandleFunc("/sessions", s.HandleListSessions).Methods("GET")
	authed.HandleFunc("/sessions/{id}", s.HandleGetSession).Methods("GET")

	r.HandleFunc("/api/admin/sweetlink/cli-token", s.HandleCLIToken).Methods("POST")

	r.Use(corsMiddleware)
	return r
}

// corsMiddleware adds CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
