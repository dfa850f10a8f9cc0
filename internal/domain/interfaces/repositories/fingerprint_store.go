package repositories

import "github.com/ochairo/carbonrepo/internal/domain/entities"

// FingerprintStore persists the ordered tracked item collection as one document
type FingerprintStore interface {
	// Load reads the whole collection. A missing document is an empty collection.
	Load() ([]entities.TrackedItem, error)

	// Save replaces the whole document with items
	Save(items []entities.TrackedItem) error

	// Path returns where the document lives
	Path() string
}
