// Package index keeps searchable copies of posts in Elasticsearch.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
)

const DefaultName = "posts"

// Post is the indexed form of a post.
type Post struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

const mapping = `{
  "mappings": {
    "properties": {
      "postId":    {"type": "keyword"},
      "userId":    {"type": "keyword"},
      "content":   {"type": "text"},
      "createdAt": {"type": "date"}
    }
  }
}`

type Index struct {
	es   *elasticsearch.Client
	name string
}

func New(es *elasticsearch.Client, name string) *Index {
	if name == "" {
		name = DefaultName
	}
	return &Index{es: es, name: name}
}

func (ix *Index) Name() string { return ix.name }

// Ensure creates the index with its mapping unless it already exists.
func (ix *Index) Ensure(ctx context.Context) error {
	res, err := ix.es.Indices.Exists([]string{ix.name}, ix.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", ix.name, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = ix.es.Indices.Create(ix.name,
		ix.es.Indices.Create.WithContext(ctx),
		ix.es.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", ix.name, err)
	}
	defer res.Body.Close()
	// Another replica may have created it first.
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return responseError("create index", res)
	}
	return nil
}

// Put indexes p under its post id, replacing any earlier copy.
func (ix *Index) Put(ctx context.Context, p Post) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("encode post %s: %w", p.PostID, err)
	}

	res, err := ix.es.Index(ix.name, &buf,
		ix.es.Index.WithContext(ctx),
		ix.es.Index.WithDocumentID(p.PostID),
	)
	if err != nil {
		return fmt.Errorf("index post %s: %w", p.PostID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index post "+p.PostID, res)
	}
	return nil
}

// Delete removes the post. A post that is not indexed counts as deleted.
func (ix *Index) Delete(ctx context.Context, postID string) error {
	res, err := ix.es.Delete(ix.name, postID, ix.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete post %s: %w", postID, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete post "+postID, res)
	}
	return nil
}

// Search returns the best matches for query, most relevant first.
func (ix *Index) Search(ctx context.Context, query string, size int) ([]Post, error) {
	body := map[string]any{
		"query": map[string]any{
			"match": map[string]any{
				"content": map[string]any{
					"query":     query,
					"fuzziness": "AUTO",
				},
			},
		},
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	res, err := ix.es.Search(
		ix.es.Search.WithContext(ctx),
		ix.es.Search.WithIndex(ix.name),
		ix.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", ix.name, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return []Post{}, nil
	}
	if res.IsError() {
		return nil, responseError("search", res)
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source Post `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]Post, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		out[i] = hit.Source
	}
	return out, nil
}

func (ix *Index) Ping(ctx context.Context) error {
	res, err := ix.es.Ping(ix.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("ping", res)
	}
	return nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("%s: elasticsearch %s: %s", op, res.Status(), bytes.TrimSpace(body))
}
