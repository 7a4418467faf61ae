package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sweetlink/sweetlink/internal/token"
)

// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ok":       true,
		"sessions": len(s.registry.Summaries()),
	})
}

// HandleListSessions handles GET /sessions.
func (s *Server) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries := s.registry.Summaries()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// HandleGetSession handles GET /sessions/{id}.
func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	summary, err := s.registry.Lookup(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// HandleCLIToken handles POST /api/admin/sweetlink/cli-token: exchanges
// the admin key for a short-lived cli-scoped token.
func (s *Server) HandleCLIToken(w http.ResponseWriter, r *http.Request) {
	if s.adminKey == "" {
		http.Error(w, "token exchange is disabled", http.StatusNotFound)
		return
	}
	if r.Header.Get("X-Admin-Key") != s.adminKey {
		http.Error(w, "invalid admin key", http.StatusUnauthorized)
		return
	}

	var req struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		req.Subject = "cli"
	}

	tok, err := token.Sign(s.secret, token.ScopeCLI, req.Subject, token.CLITokenTTL, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token":     tok,
		"expiresIn": int(token.CLITokenTTL.Seconds()),
	})
}
