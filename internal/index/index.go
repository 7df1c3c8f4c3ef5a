package index

import "github.com/starford/nbsync/internal/models"

// PageIndex is the store of converted pages. Consumers depend on it rather
// than on *DB.
type PageIndex interface {
	UpsertPage(p PageRow, figures []FigureRow, deps map[string]string) error
	DeletePage(path string) error
	GetChecksum(path string) (string, error)
	GetPage(path string) (*models.Page, error)
	ListPages() ([]models.PageMetadata, error)
	GetFigure(src string) (*FigureRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Dependents(notebook string) ([]string, error)
	AllChecksums() (map[string]string, error)
	AllDependencies() (map[string]map[string]string, error)
	Close() error
}

var _ PageIndex = (*DB)(nil)
