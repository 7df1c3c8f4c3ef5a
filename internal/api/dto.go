package api

import (
	"time"

	"github.com/starford/nbsync/internal/models"
)

// PageDetail is a converted page with its HTML preview.
type PageDetail struct {
	Path      string             `json:"path" example:"guide/plots.md" validate:"required"`
	Markdown  string             `json:"markdown" validate:"required"`
	HTML      string             `json:"html" validate:"required"`
	Checksum  string             `json:"checksum" example:"abc123..." validate:"required"`
	Figures   []models.FigureRef `json:"figures" validate:"required"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// PageListResponse wraps page listings.
type PageListResponse struct {
	Pages []models.PageMetadata `json:"pages" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"guide/plots.md" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
