// Package blobindex stores index documents as text objects in an object
// store, one file per program under a prefix.
package blobindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/degree-indexer/internal/index"
	"github.com/JakeFAU/degree-indexer/internal/storage"
)

const contentType = "text/plain; charset=utf-8"

// Store adapts a storage.ObjectStore to index.Store.
type Store struct {
	name    string
	objects storage.ObjectStore
	prefix  string
}

var _ index.Store = (*Store)(nil)

// New returns a Store named name that keeps documents under prefix.
func New(name string, objects storage.ObjectStore, prefix string) (*Store, error) {
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if name == "" {
		return nil, fmt.Errorf("backend name is required")
	}
	return &Store{name: name, objects: objects, prefix: strings.Trim(prefix, "/")}, nil
}

// Name implements index.Store.
func (s *Store) Name() string { return s.name }

// ListIDs returns IDs of the document objects under the prefix. Other objects
// sharing the prefix are ignored.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	paths, err := s.documentPaths(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		id, _ := index.IDFromFileName(p)
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteAll removes every document object under the prefix.
func (s *Store) DeleteAll(ctx context.Context) error {
	paths, err := s.documentPaths(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.objects.DeleteObject(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Put writes doc as <prefix>/<id>.txt.
func (s *Store) Put(ctx context.Context, doc index.Document) error {
	_, err := s.objects.PutObject(ctx, storage.JoinPath(s.prefix, doc.FileName()), contentType, strings.NewReader(doc.Text))
	return err
}

func (s *Store) documentPaths(ctx context.Context) ([]string, error) {
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}
	all, err := s.objects.ListObjects(ctx, listPrefix)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(all))
	for _, p := range all {
		rel := strings.TrimPrefix(p, listPrefix)
		if strings.Contains(rel, "/") {
			continue
		}
		if _, ok := index.IDFromFileName(rel); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}
