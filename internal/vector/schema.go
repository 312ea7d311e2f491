package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

const ClassDocumentChunk = "DocumentChunk"

// SchemaClient is the slice of the Weaviate schema API that EnsureSchema needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "sourceId", DataType: []string{"string"}}, // sha256 hex, exact match
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "originalName", DataType: []string{"text"}},
		{Name: "pageNumber", DataType: []string{"int"}},
		{Name: "namespace", DataType: []string{"string"}},
	}
}

// EnsureSchema creates the chunk class, or adds properties missing from an
// older deployment of it.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassDocumentChunk)
	if err != nil {
		return err
	}

	properties := chunkProperties()

	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       ClassDocumentChunk,
			Description: "A chunk of an uploaded document",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		})
	}

	class, err := client.GetClass(ctx, ClassDocumentChunk)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		have[p.Name] = true
	}

	for _, p := range properties {
		if have[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, ClassDocumentChunk, p); err != nil {
			return err
		}
	}
	return nil
}
