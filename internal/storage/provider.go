// Package storage reads Markdown files from the vault directory.
package storage

import (
	"context"
	"time"
)

// File describes one Markdown file in the vault.
type File struct {
	// Path is slash-separated and relative to the vault root.
	Path    string
	Size    int64
	ModTime time.Time
}

// Provider is the read-only view of the vault used by the importer.
type Provider interface {
	// List returns every .md file under the vault root, sorted by path.
	// Hidden files and directories are skipped.
	List(ctx context.Context) ([]File, error)
	// Read returns the raw bytes of the file at path. A missing file yields
	// an error matching fs.ErrNotExist.
	Read(path string) ([]byte, error)
	// Root returns the absolute vault directory.
	Root() string
}
