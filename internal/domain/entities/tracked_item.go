// Package entities defines core domain models and data structures.
package entities

import (
	"fmt"
	"strings"
)

// CommitState is the last observed tip of a tracked item's default branch
type CommitState struct {
	Branch string `json:"branch"`
	SHA    string `json:"sha"`
	Date   string `json:"date"`
}

// IsZero reports whether no commit has been recorded
func (c CommitState) IsZero() bool {
	return c.SHA == "" && c.Branch == "" && c.Date == ""
}

// Display renders the human-readable annotation for the commit state.
// Format: "Last commit on <branch>: <sha> @ <timestamp>".
func (c CommitState) Display() string {
	return fmt.Sprintf("Last commit on %s: %s @ %s", c.Branch, c.SHA, c.Date)
}

// TrackedItem identifies one externally hosted artifact source and its
// last-known state.
type TrackedItem struct {
	// Coordinate is "owner/name"; unique within a store.
	Coordinate string
	Commit     CommitState
	// Annotation is the display string as read from disk. It is regenerated
	// from Commit whenever Commit is known.
	Annotation string
	// Assets maps asset file name to expected SHA-256 hex digest. A nil
	// digest means it was never successfully computed.
	Assets map[string]*string
}

// Owner returns the owner half of the coordinate
func (t TrackedItem) Owner() string {
	owner, _, _ := strings.Cut(t.Coordinate, "/")
	return owner
}

// Name returns the repository half of the coordinate
func (t TrackedItem) Name() string {
	_, name, _ := strings.Cut(t.Coordinate, "/")
	return name
}

// DisplayAnnotation returns the annotation derived from Commit, falling back
// to the stored text for items whose commit could not be recovered.
func (t TrackedItem) DisplayAnnotation() string {
	if t.Commit.SHA != "" {
		return t.Commit.Display()
	}
	return t.Annotation
}

// ExpectedDigest returns the recorded digest for an asset, if any
func (t TrackedItem) ExpectedDigest(name string) (string, bool) {
	d, ok := t.Assets[name]
	if !ok || d == nil || *d == "" {
		return "", false
	}
	return *d, true
}

// Clone returns a deep copy of the item
func (t TrackedItem) Clone() TrackedItem {
	c := t
	if t.Assets != nil {
		c.Assets = make(map[string]*string, len(t.Assets))
		for k, v := range t.Assets {
			if v == nil {
				c.Assets[k] = nil
				continue
			}
			d := *v
			c.Assets[k] = &d
		}
	}
	return c
}

// Digest returns a pointer to a copy of d, or nil when d is empty
func Digest(d string) *string {
	if d == "" {
		return nil
	}
	return &d
}
