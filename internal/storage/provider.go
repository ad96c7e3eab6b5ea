// Package storage defines the object store abstraction shared by debug
// artifacts and blob-backed index backends. Implementations live in the
// memory, local, and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrEmptyPath is returned when an object path is blank.
var ErrEmptyPath = errors.New("object path is required")

// ObjectStore writes, lists, and deletes objects addressed by slash-separated
// paths.
type ObjectStore interface {
	// PutObject stores the reader's content at path and returns a URI for it.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// ListObjects returns the paths of every object whose path starts with prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	// DeleteObject removes the object at path. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, path string) error
}

// JoinPath joins path segments with "/", dropping empty segments and stray
// slashes.
func JoinPath(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			segments = append(segments, p)
		}
	}
	return strings.Join(segments, "/")
}
