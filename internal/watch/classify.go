package watch

import (
	"path/filepath"

	"git.home.luguber.info/inful/bazelide/internal/util/sets"
)

// EventKind identifies a filesystem change type.
type EventKind string

const (
	KindCreated  EventKind = "created"
	KindModified EventKind = "modified"
	KindDeleted  EventKind = "deleted"
	KindMoved    EventKind = "moved"
)

// ChangeEvent is one raw notification from the filesystem layer.
type ChangeEvent struct {
	Kind  EventKind
	Path  string
	IsDir bool
}

// Classifier decides whether a path names a build-description file worth
// reacting to. Matching is by exact base name or by extension,
// case-sensitive, no globbing. Stateless and safe for concurrent use.
type Classifier struct {
	filenames  sets.Set[string]
	extensions sets.Set[string]
}

// NewClassifier builds a Classifier from recognized base names and
// extensions (extensions include the leading dot, e.g. ".bzl").
func NewClassifier(filenames, extensions []string) *Classifier {
	return &Classifier{
		filenames:  sets.New(filenames...),
		extensions: sets.New(extensions...),
	}
}

// Relevant reports whether path names a build-description file.
func (c *Classifier) Relevant(path string) bool {
	base := filepath.Base(path)
	if c.filenames.Has(base) {
		return true
	}
	ext := filepath.Ext(base)
	return ext != "" && c.extensions.Has(ext)
}
