package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

type fakeSchemaClient struct {
	CreatedClass    *models.Class
	ExistingClass   *models.Class
	AddedProperties []*models.Property
	existsErr       error
}

func (m *fakeSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.ExistingClass != nil, nil
}

func (m *fakeSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	m.CreatedClass = class
	return nil
}

func (m *fakeSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return m.ExistingClass, nil
}

func (m *fakeSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	m.AddedProperties = append(m.AddedProperties, property)
	return nil
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := &fakeSchemaClient{}
	require.NoError(t, EnsureSchema(context.Background(), client))
	require.NotNil(t, client.CreatedClass)

	assert.Equal(t, ClassDocumentChunk, client.CreatedClass.Class)
	assert.Equal(t, "none", client.CreatedClass.Vectorizer)

	types := map[string]string{}
	for _, p := range client.CreatedClass.Properties {
		types[p.Name] = p.DataType[0]
	}
	assert.Equal(t, "string", types["sourceId"])
	assert.Equal(t, "string", types["namespace"])
	assert.Equal(t, "int", types["chunkIndex"])
	assert.Equal(t, "int", types["pageNumber"])
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	client := &fakeSchemaClient{
		ExistingClass: &models.Class{
			Class: ClassDocumentChunk,
			Properties: []*models.Property{
				{Name: "content", DataType: []string{"text"}},
				{Name: "sourceId", DataType: []string{"string"}},
				{Name: "chunkIndex", DataType: []string{"int"}},
			},
		},
	}

	require.NoError(t, EnsureSchema(context.Background(), client))
	assert.Nil(t, client.CreatedClass, "existing class must not be recreated")

	added := map[string]bool{}
	for _, p := range client.AddedProperties {
		added[p.Name] = true
	}
	assert.True(t, added["originalName"])
	assert.True(t, added["pageNumber"])
	assert.True(t, added["namespace"])
	assert.False(t, added["content"])
}

func TestEnsureSchema_ExistsError(t *testing.T) {
	client := &fakeSchemaClient{existsErr: errors.New("connection refused")}
	assert.Error(t, EnsureSchema(context.Background(), client))
}
