package mcpgateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler builds the minimal search/execute HTTP surface over reg. It has
// no downstream transport and no access-control layer — both remain
// out-of-scope collaborators per SPEC_FULL.md's MCP aggregator section —
// and is mounted as an optional route group, never in the request path of
// the core chat-completion surfaces.
func Handler(reg *Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/search", handleSearch(reg))
	r.Post("/execute", handleExecute(reg))
	return r
}

func handleSearch(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"tools": reg.Search(query),
		})
	}
}

type executeRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func handleExecute(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		result, err := reg.Execute(r.Context(), req.Name, req.Arguments)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": result})
	}
}
