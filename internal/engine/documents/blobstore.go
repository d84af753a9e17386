// Package documents stores uploaded document bytes and keeps their metadata
// in the owner's "documents" tenant record.
package documents

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalidFilename = errors.New("invalid filename")

// BlobStore holds raw document bytes under a per-user directory. Keys are
// <doc_id>_<filename>; identical bytes uploaded twice are stored twice.
type BlobStore interface {
	Save(ctx context.Context, userDir, docID string, data []byte, filename, mimeType string) (string, error)
	// Get reports false with a nil error when the blob does not exist.
	Get(ctx context.Context, userDir, docID, filename string) ([]byte, bool, error)
	// Delete reports false with a nil error when the blob was already gone.
	Delete(ctx context.Context, userDir, docID, filename string) (bool, error)
	// List returns the blobs stored under userDir.
	List(ctx context.Context, userDir string) ([]BlobInfo, error)
}

// BlobInfo describes a stored blob. ModTime is zero when the backend does not
// report it.
type BlobInfo struct {
	Name    string
	ModTime time.Time
}

// CleanFilename reduces name to its base name so it cannot address anything
// outside the user's document directory.
func CleanFilename(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidFilename
	}
	return name, nil
}

// BlobName joins a document id and filename into the stored name.
func BlobName(docID, filename string) (string, error) {
	clean, err := CleanFilename(filename)
	if err != nil {
		return "", err
	}
	if docID == "" || strings.ContainsAny(docID, "/\\") {
		return "", ErrInvalidFilename
	}
	return docID + "_" + clean, nil
}
