package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes (read-only; the vault is the source of truth).
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.GetNote)
	r.Post("/import", h.Import)

	// Indexing.
	r.Post("/reindex", h.Reindex)
	r.Get("/runs", h.Runs)

	// Graph reads.
	r.Get("/backlinks", h.Backlinks)
	r.Get("/graph", h.Graph)
	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
