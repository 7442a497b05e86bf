// Package milvus wraps the vector store's HTTP API: collection CRUD,
// chunked ingest, and hybrid search over a dense COSINE vector field.
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsmind/opsmind/adapters"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/types"
)

const (
	backendName = "milvus"

	// VectorField is the dense vector column on every collection.
	VectorField = "dense_vector"

	// DefaultDimension matches the local hash embedder.
	DefaultDimension = 256
)

// Embedder turns text into a dense vector. The model-backed embedder is
// injected by the caller; HashEmbedder keeps ingest working offline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

type Config struct {
	BaseURL string
	Token   string
}

type Client struct {
	http     *adapters.Client
	embedder Embedder
}

func New(cfg Config, embedder Embedder) *Client {
	var opts []adapters.Option
	if cfg.Token != "" {
		opts = append(opts, adapters.WithBearerToken(cfg.Token))
	}
	if embedder == nil {
		embedder = NewHashEmbedder(DefaultDimension)
	}
	return &Client{
		http:     adapters.NewClient(backendName, cfg.BaseURL, opts...),
		embedder: embedder,
	}
}

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (r apiResponse) check() error {
	if r.Code != 0 {
		return fmt.Errorf("vector store error %d: %s", r.Code, r.Message)
	}
	return nil
}

// CreateCollection creates a collection keyed by an auto id with the dense
// vector field and dynamic metadata columns.
func (c *Client) CreateCollection(ctx context.Context, name string) error {
	body := map[string]any{
		"collectionName":     name,
		"dimension":          c.embedder.Dimension(),
		"metricType":         "COSINE",
		"vectorField":        VectorField,
		"autoId":             true,
		"enableDynamicField": true,
	}
	var resp apiResponse
	if err := c.http.PostJSON(ctx, "/v2/vectordb/collections/create", body, &resp); err != nil {
		return fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.check()
}

// DropCollection removes a collection and its data.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	var resp apiResponse
	if err := c.http.PostJSON(ctx, "/v2/vectordb/collections/drop", map[string]any{"collectionName": name}, &resp); err != nil {
		return fmt.Errorf("failed to drop collection %q: %w", name, err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.check()
}

// ListCollections lists collection names.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		apiResponse
		Data []string `json:"data"`
	}
	if err := c.http.PostJSON(ctx, "/v2/vectordb/collections/list", map[string]any{}, &resp); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.Data, resp.check()
}

// InsertDocument chunks a document, embeds every chunk, and inserts the
// rows. Returns the number of chunks stored.
func (c *Client) InsertDocument(ctx context.Context, collection, content string, method ChunkMethod, meta Chunk) (int, error) {
	chunks := SplitText(content, method, ChunkOptions{})
	if len(chunks) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := c.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d: %w", chunk.Index, err)
		}
		row := map[string]any{
			VectorField:    vector,
			"content":      chunk.Content,
			"hash":         chunk.Hash,
			"chunk_index":  chunk.Index,
			"chunk_method": chunk.Method,
			"file_path":    meta.FilePath,
			"doc_title":    meta.Title,
			"doc_type":     meta.DocType,
			"language":     meta.Language,
			"keywords":     strings.Join(meta.Keywords, ","),
			"summary":      chunk.Summary,
			"created_at":   chunk.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		rows = append(rows, row)
	}

	body := map[string]any{"collectionName": collection, "data": rows}
	var resp struct {
		apiResponse
		Data struct {
			InsertCount int `json:"insertCount"`
		} `json:"data"`
	}
	if err := c.http.PostJSON(ctx, "/v2/vectordb/entities/insert", body, &resp); err != nil {
		return 0, fmt.Errorf("failed to insert into %q: %w", collection, err)
	}
	if err := resp.check(); err != nil {
		return 0, err
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	logging.GetLogger("milvus").Info("document ingested",
		"collection", collection, "chunks", len(rows), "method", string(method))
	return len(rows), nil
}

// SearchHit is one vector search result with its stored metadata.
type SearchHit struct {
	Content   string   `json:"content"`
	Distance  float64  `json:"distance"`
	Title     string   `json:"doc_title,omitempty"`
	FilePath  string   `json:"file_path,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	Score     float64  `json:"score"`
}

// Search runs a dense vector search and returns hits ordered by cosine
// similarity.
func (c *Client) Search(ctx context.Context, collection, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	body := map[string]any{
		"collectionName": collection,
		"data":           [][]float32{vector},
		"annsField":      VectorField,
		"limit":          limit,
		"outputFields":   []string{"content", "doc_title", "file_path", "keywords", "created_at"},
	}
	var resp struct {
		apiResponse
		Data []struct {
			Content   string  `json:"content"`
			Distance  float64 `json:"distance"`
			DocTitle  string  `json:"doc_title"`
			FilePath  string  `json:"file_path"`
			Keywords  string  `json:"keywords"`
			CreatedAt string  `json:"created_at"`
		} `json:"data"`
	}
	if err := c.http.PostJSON(ctx, "/v2/vectordb/entities/search", body, &resp); err != nil {
		return nil, fmt.Errorf("search failed in %q: %w", collection, err)
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	adapters.RecordCall(backendName, string(types.SourceLive))

	hits := make([]SearchHit, 0, len(resp.Data))
	for _, d := range resp.Data {
		var keywords []string
		if d.Keywords != "" {
			keywords = strings.Split(d.Keywords, ",")
		}
		hits = append(hits, SearchHit{
			Content:   d.Content,
			Distance:  d.Distance,
			Title:     d.DocTitle,
			FilePath:  d.FilePath,
			Keywords:  keywords,
			CreatedAt: d.CreatedAt,
			Score:     d.Distance,
		})
	}
	return hits, nil
}

// HybridSearch runs the dense search and re-ranks hits with the lexical,
// keyword, and recency boosts. Hits below minScore are dropped.
func (c *Client) HybridSearch(ctx context.Context, collection, query string, limit int, minScore float64) ([]SearchHit, error) {
	hits, err := c.Search(ctx, collection, query, limit*2)
	if err != nil {
		return nil, err
	}
	return Rerank(query, hits, limit, minScore), nil
}
