// Package models defines the domain types shared by the page pipeline.
package models

import "time"

// Page is a documentation page after synchronization with its notebooks.
type Page struct {
	Path      string      `json:"path"`
	Markdown  string      `json:"markdown"`
	Checksum  string      `json:"checksum"`
	Figures   []FigureRef `json:"figures,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PageMetadata is a lightweight representation returned by list operations.
type PageMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FigureRef points at a rendered cell output stored alongside a page.
type FigureRef struct {
	Src  string `json:"src"`
	Page string `json:"page"`
	Mime string `json:"mime"`
	Size int    `json:"size"`
}
