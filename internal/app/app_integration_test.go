package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akashbains10/pdf-assistant/features/job"
	"github.com/Akashbains10/pdf-assistant/internal/app"
	"github.com/Akashbains10/pdf-assistant/internal/config"
	"github.com/Akashbains10/pdf-assistant/internal/logger"
	"github.com/Akashbains10/pdf-assistant/internal/testutils"
)

func TestApp_EndToEnd_Ingestion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	cfg := s.AppConfig()
	ctx := context.Background()

	deps, err := app.Bootstrap(ctx, cfg)
	require.NoError(t, err)
	defer deps.Close()

	completer := &recordingCompleter{}
	application, err := app.New(cfg, deps.DB, deps.Index, deps.NSQProducer, logger.New(&bytes.Buffer{}, "info"), &app.Options{
		Embedder:  wordEmbedder{vocab: []string{"sky", "blue", "grass", "green"}},
		Completer: completer,
	})
	require.NoError(t, err)
	defer application.Close()

	consumer, err := app.StartConsumer(cfg, application.IngestConsumer, logger.New(&bytes.Buffer{}, "info"))
	require.NoError(t, err)
	defer func() {
		consumer.Stop()
		<-consumer.StopChan
	}()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "facts.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("The sky is blue.\nThe grass is green."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/assistant/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var up struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&up))

	require.Eventually(t, func() bool {
		j, err := application.JobService.Get(ctx, up.JobID)
		return err == nil && j.Status == job.StatusCompleted
	}, 30*time.Second, 200*time.Millisecond)

	j, err := application.JobService.Get(ctx, up.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, j.ChunkCount)
	assert.NotEmpty(t, j.DocumentID)

	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assistant/chat?message=sky", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "The sky is blue.")

	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunks":1`)
}

func TestBootstrap_MemoryBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	cfg := s.AppConfig()
	cfg.VectorBackend = config.BackendMemory
	cfg.WeaviateHost = "127.0.0.1:1"

	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	n, err := deps.Index.CountChunks(context.Background(), cfg.VectorNamespace)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
