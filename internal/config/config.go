package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	BackendWeaviate = "weaviate"
	BackendMemory   = "memory"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"assistant"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"assistant"`

	WeaviateHost    string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme  string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateAPIKey  string `envconfig:"WEAVIATE_API_KEY"`
	VectorBackend   string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	VectorNamespace string `envconfig:"VECTOR_NAMESPACE" default:"pdf-assistant"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Providers
	LLMProvider     string `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL"`
	CompletionModel string `envconfig:"COMPLETION_MODEL"`

	// Ingestion
	EnableAPI            bool `envconfig:"ENABLE_API" default:"true"`
	EnableWorker         bool `envconfig:"ENABLE_WORKER" default:"true"`
	IngestionConcurrency int  `envconfig:"INGESTION_CONCURRENCY" default:"4"`
	UpsertConcurrency    int  `envconfig:"UPSERT_CONCURRENCY" default:"5"`
	IngestMaxAttempts    int  `envconfig:"INGEST_MAX_ATTEMPTS" default:"5"`
	EmbedRetryAttempts   int  `envconfig:"EMBED_RETRY_ATTEMPTS" default:"3"`
	JobLeaseSeconds      int  `envconfig:"JOB_LEASE_SECONDS" default:"300"`
	ChunkSize            int  `envconfig:"CHUNK_SIZE" default:"300"`
	ChunkOverlap         int  `envconfig:"CHUNK_OVERLAP" default:"0"`

	// Retrieval
	RetrievalTopK       int `envconfig:"RETRIEVAL_TOP_K" default:"2"`
	MaxContextChars     int `envconfig:"MAX_CONTEXT_CHARS" default:"6000"`
	QueryTimeoutSeconds int `envconfig:"QUERY_TIMEOUT_SECONDS" default:"60"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"3000"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over .env entries
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.EnableWorker && c.NSQDHost == "" && c.NSQLookupd == "" {
		return fmt.Errorf("%w: NSQD_HOST or NSQ_LOOKUPD", ErrMissingRequired)
	}

	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: LLM_PROVIDER %q", ErrInvalidConfig, c.LLMProvider)
	}
	switch c.VectorBackend {
	case BackendWeaviate, BackendMemory:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalidConfig, c.VectorBackend)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidConfig)
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("%w: RETRIEVAL_TOP_K must be positive", ErrInvalidConfig)
	}
	if c.IngestMaxAttempts <= 0 || c.IngestMaxAttempts > 65535 {
		return fmt.Errorf("%w: INGEST_MAX_ATTEMPTS must be in [1, 65535]", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) JobLease() time.Duration {
	return time.Duration(c.JobLeaseSeconds) * time.Second
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
