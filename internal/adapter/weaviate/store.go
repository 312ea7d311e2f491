// Package weaviate stores document chunks in a Weaviate class with
// caller-supplied vectors.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

const className = vector.ClassDocumentChunk

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewSchemaAdapter(s.client))
}

// Upsert writes rec through the batch endpoint, which replaces any object
// already stored under the same id.
func (s *Store) Upsert(ctx context.Context, rec vector.Record) error {
	obj := &models.Object{
		Class: className,
		ID:    strfmt.UUID(rec.ID),
		Properties: map[string]interface{}{
			"content":      rec.Content,
			"sourceId":     rec.Metadata.SourceDocumentID,
			"chunkIndex":   rec.Metadata.ChunkIndex,
			"originalName": rec.Metadata.OriginalName,
			"pageNumber":   rec.Metadata.PageNumber,
			"namespace":    rec.Namespace,
		},
		Vector: rec.Vector,
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			msgs := make([]string, 0, len(r.Result.Errors.Error))
			for _, e := range r.Result.Errors.Error {
				msgs = append(msgs, e.Message)
			}
			return fmt.Errorf("batch import %s: %s", rec.ID, strings.Join(msgs, "; "))
		}
	}
	return nil
}

func namespaceFilter(namespace string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"namespace"}).
		WithOperator(filters.Equal).
		WithValueString(namespace)
}

// Query runs a nearVector search. Scores are 1 - cosine distance.
func (s *Store) Query(ctx context.Context, vec []float32, k int, namespace string) ([]vector.Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "sourceId"},
		{Name: "chunkIndex"},
		{Name: "originalName"},
		{Name: "pageNumber"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithWhere(namespaceFilter(namespace)).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	var matches []vector.Match
	for _, props := range getObjects(res.Data) {
		m := vector.Match{}
		m.Content, _ = props["content"].(string)
		m.Metadata.SourceDocumentID, _ = props["sourceId"].(string)
		m.Metadata.OriginalName, _ = props["originalName"].(string)
		if idx, ok := props["chunkIndex"].(float64); ok {
			m.Metadata.ChunkIndex = int(idx)
		}
		if page, ok := props["pageNumber"].(float64); ok {
			m.Metadata.PageNumber = int(page)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			m.ID, _ = additional["id"].(string)
			if d, ok := additional["distance"].(float64); ok {
				m.Score = 1 - d
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func getObjects(data map[string]models.JSONObject) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[className].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if props, ok := r.(map[string]interface{}); ok {
			out = append(out, props)
		}
	}
	return out
}

func (s *Store) CountChunks(ctx context.Context, namespace string) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(className).
		WithWhere(namespaceFilter(namespace)).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, errors.New("unexpected aggregate response")
	}
	rows, ok := agg[className].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}
