package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/pageservice"
	"github.com/starford/nbsync/internal/render"
)

// Handler holds API route handlers.
type Handler struct {
	svc      *pageservice.Service
	renderer *render.Renderer
	notify   func(kind, path string)
}

// NewHandler creates a new Handler. notify, if non-nil, is called after a
// page is rebuilt through the API.
func NewHandler(svc *pageservice.Service, renderer *render.Renderer, notify func(kind, path string)) *Handler {
	return &Handler{svc: svc, renderer: renderer, notify: notify}
}

// pagePath extracts the page path from the URL (everything after /api/pages/).
// Supports encoded slashes from OpenAPI clients (e.g. guide%2Fplots.md).
func pagePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListPages handles GET /api/pages.
//
//	@Summary		List converted pages
//	@Tags			pages
//	@Produce		json
//	@Success		200	{object}	PageListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.svc.ListPages(r.Context())
	if err != nil {
		slog.Error("list pages failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: pages})
}

// GetPage handles GET /api/pages/*. With ?format=html the rendered HTML is
// returned as text/html.
//
//	@Summary		Get a converted page by path
//	@Tags			pages
//	@Produce		json,html
//	@Param			path	path		string	true	"Page path"
//	@Param			format	query		string	false	"Response format"	Enums(json, html)
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	page, err := h.svc.GetPage(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get page", path, err)
		return
	}
	h.writePage(w, r, page)
}

// BuildPage handles POST /api/pages/*: the page is converted again and
// stale notebooks are executed.
//
//	@Summary		Rebuild a page
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Page path"
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [post]
func (h *Handler) BuildPage(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	page, err := h.svc.Rebuild(r.Context(), path)
	if err != nil {
		writeServiceError(w, "build page", path, err)
		return
	}
	if h.notify != nil {
		h.notify("updated", path)
	}
	h.writePage(w, r, page)
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, page *models.Page) {
	names := make([]string, len(page.Figures))
	for i, f := range page.Figures {
		names[i] = f.Src
	}
	html, err := h.renderer.Render([]byte(page.Markdown), names)
	if err != nil {
		writeServiceError(w, "render page", page.Path, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(html)
		return
	}

	figures := page.Figures
	if figures == nil {
		figures = []models.FigureRef{}
	}
	writeJSON(w, http.StatusOK, PageDetail{
		Path:      page.Path,
		Markdown:  page.Markdown,
		HTML:      string(html),
		Checksum:  page.Checksum,
		Figures:   figures,
		UpdatedAt: page.UpdatedAt,
	})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across converted pages
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{Path: res.Path, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: out})
}
