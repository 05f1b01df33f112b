package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/jotter/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetNote)
			r.Put("/", h.UpdateNote)
			r.Delete("/", h.DeleteNote)
			r.Patch("/draft", h.SaveDraft)
			r.Post("/pin", h.TogglePin)
			r.Post("/archive", h.ToggleArchive)
		})
	})
	r.Get("/counts", h.Counts)

	// Backup.
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
