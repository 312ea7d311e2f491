package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Akashbains10/pdf-assistant/features/assistant"
	"github.com/Akashbains10/pdf-assistant/features/job"
	"github.com/Akashbains10/pdf-assistant/features/stats"
	"github.com/Akashbains10/pdf-assistant/internal/adapter/gemini"
	"github.com/Akashbains10/pdf-assistant/internal/adapter/openai"
	"github.com/Akashbains10/pdf-assistant/internal/config"
	"github.com/Akashbains10/pdf-assistant/internal/extract"
	"github.com/Akashbains10/pdf-assistant/internal/middleware"
	"github.com/Akashbains10/pdf-assistant/internal/retrieval"
	"github.com/Akashbains10/pdf-assistant/internal/settings"
	"github.com/Akashbains10/pdf-assistant/internal/storage"
	"github.com/Akashbains10/pdf-assistant/internal/vector"
	"github.com/Akashbains10/pdf-assistant/internal/worker"
)

// Options overrides collaborators that New would otherwise build from
// configuration.
type Options struct {
	Embedder  vector.Embedder
	Completer retrieval.Completer
	Extractor extract.Extractor
}

type App struct {
	Handler        http.Handler
	JobService     *job.Service
	Retrieval      *retrieval.Service
	IngestConsumer *worker.IngestConsumer

	cfg     *config.Config
	closers []io.Closer
}

func New(
	cfg *config.Config,
	db *sql.DB,
	index vector.Index,
	pub job.EventPublisher,
	logger *slog.Logger,
	opts *Options,
) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	a := &App{cfg: cfg}

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)

	seedCtx := context.Background()
	if seeded, err := settingsService.SeedAPIKey(seedCtx, cfg.GeminiAPIKey); err != nil {
		logger.Warn("failed to seed gemini api key", "error", err)
	} else if seeded {
		logger.Info("seeded gemini api key from environment")
	}
	settingsHandler := settings.NewHandler(settingsService)

	// Providers
	embedder, completer := opts.Embedder, opts.Completer
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		client := openai.NewClient(openai.Config{
			APIKey:          cfg.OpenAIAPIKey,
			EmbeddingModel:  cfg.EmbeddingModel,
			CompletionModel: cfg.CompletionModel,
		})
		if embedder == nil {
			embedder = client
		}
		if completer == nil {
			completer = client
		}
	default:
		if embedder == nil {
			e := gemini.NewDynamicEmbedder(settingsService, cfg.EmbeddingModel)
			a.closers = append(a.closers, e)
			embedder = e
		}
		if completer == nil {
			c := gemini.NewDynamicCompleter(settingsService, cfg.CompletionModel)
			a.closers = append(a.closers, c)
			completer = c
		}
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = extract.New()
	}

	vecClient := vector.NewClient(embedder, index, cfg.VectorNamespace)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, pub, logger)
	jobHandler := job.NewHandler(jobService)

	// Feature: Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	a.closers = append(a.closers, queryLogger)

	retrievalService := retrieval.NewService(vecClient, completer, settingsService, queryLogger, retrieval.Options{
		DefaultTopK:     cfg.RetrievalTopK,
		MaxContextChars: cfg.MaxContextChars,
	})

	// Feature: Assistant
	disk, err := storage.NewDisk(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	assistantHandler := assistant.NewHandler(disk, jobService, retrievalService, cfg.MaxUploadSizeMB<<20, cfg.QueryTimeout())

	// Feature: Stats
	statsHandler := stats.NewHandler(jobService, vecClient)

	// Worker
	a.IngestConsumer = worker.NewIngestConsumer(jobRepo, vecClient, extractor, worker.Options{
		ChunkSize:          cfg.ChunkSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		UpsertConcurrency:  cfg.UpsertConcurrency,
		MaxAttempts:        cfg.IngestMaxAttempts,
		EmbedRetryAttempts: cfg.EmbedRetryAttempts,
		Lease:              cfg.JobLease(),
	}, logger)

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /assistant/upload", assistantHandler.Upload)
	mux.HandleFunc("GET /assistant/chat", assistantHandler.Chat)

	mux.HandleFunc("GET /assistant/jobs", jobHandler.List)
	mux.HandleFunc("GET /assistant/jobs/{id}", jobHandler.Get)
	mux.HandleFunc("POST /assistant/jobs/{id}/retry", jobHandler.Retry)

	mux.HandleFunc("GET /settings", settingsHandler.GetSettings)
	mux.HandleFunc("PUT /settings", settingsHandler.UpdateSettings)

	mux.HandleFunc("GET /stats", statsHandler.GetStats)

	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(disk.Dir()))))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = middleware.Recover(middleware.CorrelationID(middleware.CORS(mux)))
	a.JobService = jobService
	a.Retrieval = retrievalService
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases provider clients and the query log.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
