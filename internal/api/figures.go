package api

import (
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// validFigureName reports whether name is a plain file name (no separators,
// no traversal).
func validFigureName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return path.Base(name) == name
}

// GetFigure handles GET /api/figures/{src}.
//
//	@Summary		Get a figure rendered from a cell output
//	@Tags			figures
//	@Produce		octet-stream
//	@Param			src	path	string	true	"Figure file name"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/figures/{src} [get]
func (h *Handler) GetFigure(w http.ResponseWriter, r *http.Request) {
	src := chi.URLParam(r, "src")
	if !validFigureName(src) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid figure name"))
		return
	}
	f, err := h.svc.GetFigure(r.Context(), src)
	if err != nil {
		writeServiceError(w, "get figure", src, err)
		return
	}
	w.Header().Set("Content-Type", f.Mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Content)))
	// Figure names are fresh for every conversion.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Content)
}
