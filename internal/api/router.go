package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nbsync/internal/pageservice"
	"github.com/starford/nbsync/internal/render"
)

// FigureRoute is where the router serves figures, relative to its mount point.
const FigureRoute = "/figures/"

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// notify, if non-nil, is told about pages rebuilt through the API.
func NewRouter(svc *pageservice.Service, renderer *render.Renderer, authEnabled bool, token string, sseHandler http.Handler, notify func(kind, path string)) chi.Router {
	h := NewHandler(svc, renderer, notify)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Pages.
	r.Get("/pages", h.ListPages)
	r.Get("/pages/*", h.GetPage)
	r.Post("/pages/*", h.BuildPage)

	// Figures rendered from cell outputs.
	r.Get(FigureRoute+"{src}", h.GetFigure)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
