package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

// QueryLogEntry is one line of the JSONL query log.
type QueryLogEntry struct {
	Timestamp     time.Time     `json:"timestamp"`
	CorrelationID string        `json:"correlation_id"`
	Question      string        `json:"question"`
	TopK          int           `json:"top_k"`
	Retrieved     int           `json:"retrieved"`
	InPrompt      int           `json:"in_prompt"`
	Sources       []ChunkRef    `json:"sources"`
	AnswerChars   int           `json:"answer_chars"`
	Duration      time.Duration `json:"-"`
	LatencyMs     int64         `json:"latency_ms"`
}

// ChunkRef identifies a chunk that reached the prompt.
type ChunkRef struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

func chunkRefs(matches []vector.Match) []ChunkRef {
	refs := make([]ChunkRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, ChunkRef{
			DocumentID: m.Metadata.SourceDocumentID,
			ChunkIndex: m.Metadata.ChunkIndex,
			Score:      m.Score,
		})
	}
	return refs
}

// QueryLogger appends one JSON object per answered question. Safe for
// concurrent use.
type QueryLogger struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	now    func() time.Time
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w), now: time.Now}
}

// NewFileQueryLogger appends to path, creating parent directories as needed.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	l := NewQueryLogger(f)
	l.closer = f
	return l, nil
}

func (l *QueryLogger) Log(entry QueryLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	entry.LatencyMs = entry.Duration.Milliseconds()
	if entry.Sources == nil {
		entry.Sources = []ChunkRef{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}

func (l *QueryLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
