package settings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Akashbains10/pdf-assistant/internal/settings"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, s *settings.Settings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func TestHandler_GetSettings(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("Get", mock.Anything).Return(&settings.Settings{GeminiAPIKey: "secret", SearchTopK: 4}, nil)

		w := httptest.NewRecorder()
		handler.GetSettings(w, httptest.NewRequest(http.MethodGet, "/settings", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "secret")

		var body map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, true, body["data"]["gemini_api_key_set"])
		assert.Equal(t, 4.0, body["data"]["search_top_k"])
		mockRepo.AssertExpectations(t)
	})

	t.Run("InternalError", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("Get", mock.Anything).Return(nil, errors.New("db error"))

		w := httptest.NewRecorder()
		handler.GetSettings(w, httptest.NewRequest(http.MethodGet, "/settings", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandler_UpdateSettings(t *testing.T) {
	t.Run("PartialUpdate", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("Get", mock.Anything).Return(&settings.Settings{GeminiAPIKey: "keep", SearchTopK: 2}, nil)
		mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *settings.Settings) bool {
			return s.GeminiAPIKey == "keep" && s.SearchTopK == 5
		})).Return(nil)

		req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewBufferString(`{"search_top_k": 5}`))
		w := httptest.NewRecorder()
		handler.UpdateSettings(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockRepo.AssertExpectations(t)
	})

	t.Run("ClearTopK", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("Get", mock.Anything).Return(&settings.Settings{GeminiAPIKey: "keep", SearchTopK: 4}, nil)
		mockRepo.On("Update", mock.Anything, &settings.Settings{GeminiAPIKey: "keep"}).Return(nil)

		req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewBufferString(`{"search_top_k": 0}`))
		w := httptest.NewRecorder()
		handler.UpdateSettings(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockRepo.AssertExpectations(t)
	})

	t.Run("InvalidTopK", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("Get", mock.Anything).Return(&settings.Settings{SearchTopK: 2}, nil)

		req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewBufferString(`{"search_top_k": -1}`))
		w := httptest.NewRecorder()
		handler.UpdateSettings(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		handler := settings.NewHandler(settings.NewService(new(MockRepository)))

		req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewBufferString("invalid json"))
		w := httptest.NewRecorder()
		handler.UpdateSettings(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	})
}

func TestService_SeedAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("FillsEmpty", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Get", ctx).Return(&settings.Settings{SearchTopK: 2}, nil)
		repo.On("Update", ctx, &settings.Settings{GeminiAPIKey: "env-key", SearchTopK: 2}).Return(nil)

		seeded, err := settings.NewService(repo).SeedAPIKey(ctx, "env-key")
		require.NoError(t, err)
		assert.True(t, seeded)
	})

	t.Run("KeepsExisting", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Get", ctx).Return(&settings.Settings{GeminiAPIKey: "db-key", SearchTopK: 2}, nil)

		seeded, err := settings.NewService(repo).SeedAPIKey(ctx, "env-key")
		require.NoError(t, err)
		assert.False(t, seeded)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("NoKey", func(t *testing.T) {
		seeded, err := settings.NewService(new(MockRepository)).SeedAPIKey(ctx, "")
		require.NoError(t, err)
		assert.False(t, seeded)
	})
}
