// Package vector turns text into embedded records and back. Client owns the
// embedding step so ingestion and retrieval share one code path to the index.
package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Akashbains10/pdf-assistant/internal/apperr"
)

// chunkNamespace seeds the UUIDv5 ids of document chunks.
var chunkNamespace = uuid.MustParse("6f1c6a52-3d0e-5a3b-9c6d-2b8f4e0a7d11")

type Metadata struct {
	SourceDocumentID string `json:"sourceDocumentId"`
	ChunkIndex       int    `json:"chunkIndex"`
	OriginalName     string `json:"originalName,omitempty"`
	PageNumber       int    `json:"pageNumber,omitempty"`
}

// Record is what an Index stores for one chunk.
type Record struct {
	ID        string
	Namespace string
	Vector    []float32
	Content   string
	Metadata  Metadata
}

type Match struct {
	ID       string   `json:"id"`
	Content  string   `json:"pageContent"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Index interface {
	Upsert(ctx context.Context, rec Record) error
	Query(ctx context.Context, vec []float32, k int, namespace string) ([]Match, error)
	CountChunks(ctx context.Context, namespace string) (int, error)
}

// ChunkID derives the record id of a chunk. The same document bytes and
// index always map to the same id, so re-ingestion overwrites.
func ChunkID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d", documentID, chunkIndex))).String()
}

type Client struct {
	embedder  Embedder
	index     Index
	namespace string
}

func NewClient(embedder Embedder, index Index, namespace string) *Client {
	return &Client{embedder: embedder, index: index, namespace: namespace}
}

func (c *Client) Namespace() string {
	return c.namespace
}

func (c *Client) Upsert(ctx context.Context, id, text string, md Metadata) error {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return apperr.New(apperr.ErrEmbedding, "vector.upsert", err)
	}

	rec := Record{
		ID:        id,
		Namespace: c.namespace,
		Vector:    vec,
		Content:   text,
		Metadata:  md,
	}
	if err := c.index.Upsert(ctx, rec); err != nil {
		return apperr.New(apperr.ErrIndex, "vector.upsert", err)
	}
	return nil
}

// Query returns at most k matches, best first.
func (c *Client) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, apperr.Validation("vector.query", fmt.Sprintf("k must be positive, got %d", k))
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperr.New(apperr.ErrEmbedding, "vector.query", err)
	}

	matches, err := c.index.Query(ctx, vec, k, c.namespace)
	if err != nil {
		return nil, apperr.New(apperr.ErrIndex, "vector.query", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Metadata.ChunkIndex < matches[j].Metadata.ChunkIndex
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	n, err := c.index.CountChunks(ctx, c.namespace)
	if err != nil {
		return 0, apperr.New(apperr.ErrIndex, "vector.count", err)
	}
	return n, nil
}
