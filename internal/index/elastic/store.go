// Package elastic stores index documents in an Elasticsearch index.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/index"
)

// DefaultIndex is used when Config.Index is empty.
const DefaultIndex = "degree_programs"

// maxListed caps the IDs returned by a single ListIDs search.
const maxListed = 10000

// Config controls the Elasticsearch connection.
type Config struct {
	Addresses []string `mapstructure:"addresses" yaml:"addresses"`
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password,omitempty"`
	APIKey    string   `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Index     string   `mapstructure:"index" yaml:"index"`
}

// Store implements index.BatchStore on top of an Elasticsearch index.
type Store struct {
	client *es.Client
	index  string
}

var _ index.BatchStore = (*Store)(nil)

// New builds an Elasticsearch client from cfg.
func New(cfg Config) (*Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses are required")
	}
	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return NewWithClient(client, cfg.Index)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *es.Client, indexName string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("elasticsearch client is required")
	}
	if indexName == "" {
		indexName = DefaultIndex
	}
	return &Store{client: client, index: indexName}, nil
}

// Name implements index.Store.
func (s *Store) Name() string { return "elasticsearch" }

// source is the stored document body.
type source struct {
	Name    string                `json:"name"`
	URL     string                `json:"url,omitempty"`
	Content string                `json:"content"`
	Record  crawler.ProgramRecord `json:"record"`
}

func newSource(doc index.Document) source {
	return source{Name: doc.Name, URL: doc.URL, Content: doc.Text, Record: doc.Record}
}

// ListIDs returns every document ID in the index. A missing index is empty.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	query := map[string]any{
		"_source": false,
		"size":    maxListed,
		"query":   map[string]any{"match_all": map[string]any{}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("error searching: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	ids := make([]string, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// DeleteAll removes every document with a delete-by-query.
func (s *Store) DeleteAll(ctx context.Context) error {
	res, err := s.client.DeleteByQuery(
		[]string{s.index},
		strings.NewReader(`{"query":{"match_all":{}}}`),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithConflicts("proceed"),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("delete by query failed: %w", err)
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("error deleting documents: %s", res.String())
	}
	return nil
}

// Put indexes one document.
func (s *Store) Put(ctx context.Context, doc index.Document) error {
	body, err := json.Marshal(newSource(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(doc.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// PutAll indexes docs with one bulk request and reports per-item failures.
func (s *Store) PutAll(ctx context.Context, docs []index.Document) (map[string]error, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{
			"index": map[string]any{"_index": s.index, "_id": doc.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("failed to encode meta: %w", err)
		}
		if err := enc.Encode(newSource(doc)); err != nil {
			return nil, fmt.Errorf("failed to encode document: %w", err)
		}
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk request failed: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, fmt.Errorf("bulk indexing error: %s", res.String())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("error decoding bulk response: %w", err)
	}
	failures := make(map[string]error)
	if !parsed.Errors {
		return failures, nil
	}
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error == nil && result.Status < http.StatusBadRequest {
				continue
			}
			reason := fmt.Sprintf("status %d", result.Status)
			if result.Error != nil {
				reason = result.Error.Type + ": " + result.Error.Reason
			}
			failures[result.ID] = fmt.Errorf("bulk item failed: %s", reason)
		}
	}
	return failures, nil
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
