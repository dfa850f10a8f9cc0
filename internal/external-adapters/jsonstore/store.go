// Package jsonstore persists the fingerprint store as a JSON document.
package jsonstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
	"github.com/ochairo/carbonrepo/internal/domain/services"
)

const indent = "    "

// entry is the on-disk shape of one tracked item. _comment is the legacy
// annotation and is regenerated from commit on every save.
type entry struct {
	Comment string                `json:"_comment"`
	Commit  *entities.CommitState `json:"commit,omitempty"`
	Assets  map[string]*string    `json:"assets"`
}

// Store reads and writes the whole collection as an ordered array of
// single-key objects: [{"owner/name": {...}}, ...]
type Store struct {
	path string
}

// New creates a store backed by path
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location
func (s *Store) Path() string {
	return s.path
}

// Load reads the collection. A missing file is an empty collection. Entries
// without a structured commit are migrated from their annotation.
func (s *Store) Load() ([]entities.TrackedItem, error) {
	//nolint:gosec // G304: store path is user configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []entities.TrackedItem{}, nil
		}
		return nil, domainerrors.Store(s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []entities.TrackedItem{}, nil
	}
	return Decode(data)
}

// Decode parses a store document
func Decode(data []byte) ([]entities.TrackedItem, error) {
	var doc []map[string]entry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domainerrors.Parse("store document", err)
	}

	items := make([]entities.TrackedItem, 0, len(doc))
	index := make(map[string]int, len(doc))
	for _, obj := range doc {
		// Objects hold one key; sort so a hand-edited multi-key object loads deterministically
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, coord := range keys {
			item := toItem(coord, obj[coord])
			if i, dup := index[coord]; dup {
				items[i] = item
				continue
			}
			index[coord] = len(items)
			items = append(items, item)
		}
	}
	return items, nil
}

func toItem(coord string, e entry) entities.TrackedItem {
	item := entities.TrackedItem{
		Coordinate: coord,
		Annotation: e.Comment,
		Assets:     e.Assets,
	}
	if item.Assets == nil {
		item.Assets = map[string]*string{}
	}
	if e.Commit != nil {
		item.Commit = *e.Commit
	} else if state, ok := services.ParseAnnotation(e.Comment); ok {
		item.Commit = state
	}
	return item
}

// Encode renders items as a store document
func Encode(items []entities.TrackedItem) ([]byte, error) {
	doc := make([]map[string]entry, 0, len(items))
	for _, item := range items {
		e := entry{
			Comment: item.DisplayAnnotation(),
			Assets:  item.Assets,
		}
		if e.Assets == nil {
			e.Assets = map[string]*string{}
		}
		if !item.Commit.IsZero() {
			c := item.Commit
			e.Commit = &c
		}
		doc = append(doc, map[string]entry{item.Coordinate: e})
	}

	data, err := json.MarshalIndent(doc, "", indent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode store: %w", err)
	}
	return append(data, '\n'), nil
}

// Save atomically replaces the document with items
func (s *Store) Save(items []entities.TrackedItem) error {
	data, err := Encode(items)
	if err != nil {
		return domainerrors.Store(s.path, err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return domainerrors.Store(s.path, err)
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it over path
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".carbonrepo-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
