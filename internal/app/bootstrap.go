package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"github.com/Akashbains10/pdf-assistant/internal/adapter/memory"
	wstore "github.com/Akashbains10/pdf-assistant/internal/adapter/weaviate"
	"github.com/Akashbains10/pdf-assistant/internal/config"
	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

type Dependencies struct {
	DB          *sql.DB
	Index       vector.Index
	NSQProducer *nsq.Producer
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

// SchemaEnsurer is a vector backend that needs its schema created up front.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// Database
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = retry(ctx, cfg.BootstrapRetryAttempts, retryDelay, func() error {
		return db.PingContext(ctx)
	}, "failed to ping db, retrying...")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	if err := runMigrations(db, cfg.MigrationPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Vector index
	var index vector.Index
	switch cfg.VectorBackend {
	case config.BackendMemory:
		slog.Warn("using in-memory vector index, chunks are lost on restart")
		index = memory.NewIndex()
	default:
		wClient, err := vector.NewWeaviateClient(cfg.WeaviateHost, cfg.WeaviateScheme, cfg.WeaviateAPIKey)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(wClient)
		if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		index = store
	}

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	producer.SetLogger(NewNSQLogger(slog.Default()), nsq.LogLevelWarning)

	if cfg.NSQDHTTP != "" {
		go func() {
			// nsqd may still be starting alongside us.
			time.Sleep(2 * time.Second)
			createTopics(ctx, http.DefaultClient, cfg.NSQDHTTP, config.TopicIngestDocument)
		}()
	}

	return &Dependencies{
		DB:          db,
		Index:       index,
		NSQProducer: producer,
	}, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// createTopics registers topics on nsqd so consumers that look them up
// before the first publish do not fail.
func createTopics(ctx context.Context, client *http.Client, nsqdHTTP string, topics ...string) {
	for _, topic := range topics {
		u := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
		if err != nil {
			slog.Warn("failed to build NSQ topic request", "topic", topic, "error", err)
			continue
		}
		resp, err := client.Do(req) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			slog.Warn("unexpected status creating NSQ topic", "topic", topic, "status", resp.StatusCode)
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}
}

// EnsureSchemaWithRetry retries schema creation while the backend starts up.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	return retry(ctx, attempts, delay, func() error {
		return store.EnsureSchema(ctx)
	}, "failed to ensure vector schema, retrying...")
}

func retry(ctx context.Context, attempts int, delay time.Duration, op func() error, msg string) error {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)), ctx)
	return backoff.RetryNotify(op, b, func(err error, _ time.Duration) {
		slog.Warn(msg, "error", err)
	})
}
