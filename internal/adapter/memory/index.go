// Package memory is an in-process vector index for local runs and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

type Index struct {
	mu      sync.RWMutex
	records map[string]vector.Record
}

func NewIndex() *Index {
	return &Index{records: make(map[string]vector.Record)}
}

func (x *Index) Upsert(ctx context.Context, rec vector.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records[rec.ID] = rec
	return nil
}

func (x *Index) Query(ctx context.Context, vec []float32, k int, namespace string) ([]vector.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	matches := make([]vector.Match, 0, len(x.records))
	for _, rec := range x.records {
		if rec.Namespace != namespace {
			continue
		}
		matches = append(matches, vector.Match{
			ID:       rec.ID,
			Content:  rec.Content,
			Metadata: rec.Metadata,
			Score:    cosine(vec, rec.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Metadata.ChunkIndex != matches[j].Metadata.ChunkIndex {
			return matches[i].Metadata.ChunkIndex < matches[j].Metadata.ChunkIndex
		}
		return matches[i].ID < matches[j].ID
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (x *Index) CountChunks(ctx context.Context, namespace string) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, rec := range x.records {
		if rec.Namespace == namespace {
			n++
		}
	}
	return n, nil
}

// cosine returns 0 for mismatched or zero-length vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
