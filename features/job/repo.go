package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Akashbains10/pdf-assistant/internal/worker"
)

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, status Status, limit int) ([]Job, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	ResetForRetry(ctx context.Context, id string) error
	Fail(ctx context.Context, id, reason string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, source_path, original_name, filename, destination, document_id, status, attempts, chunk_count, error, payload, leased_until, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	j := &Job{}
	var (
		payload []byte
		leased  sql.NullTime
	)
	err := s.Scan(&j.ID, &j.SourcePath, &j.OriginalName, &j.Filename, &j.Destination, &j.DocumentID,
		&j.Status, &j.Attempts, &j.ChunkCount, &j.Error, &payload, &leased, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Payload = json.RawMessage(payload)
	if leased.Valid {
		j.LeasedUntil = &leased.Time
	}
	return j, nil
}

func (r *PostgresRepo) Create(ctx context.Context, j *Job) error {
	query := `INSERT INTO ingestion_jobs (id, source_path, original_name, filename, destination, status, payload) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, j.ID, j.SourcePath, j.OriginalName, j.Filename, j.Destination, j.Status, string(j.Payload)).
		Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// List returns the newest jobs first. An empty status lists every job.
func (r *PostgresRepo) List(ctx context.Context, status Status, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM ingestion_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var (
			s Status
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r *PostgresRepo) ResetForRetry(ctx context.Context, id string) error {
	query := `UPDATE ingestion_jobs SET status = 'queued', attempts = 0, error = '', leased_until = NULL, updated_at = NOW() WHERE id = $1 AND status = 'failed'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotRetryable
	}
	return nil
}

// EnsureQueued records a job enqueued by a producer that did not create the
// row itself. Existing rows are left alone.
func (r *PostgresRepo) EnsureQueued(ctx context.Context, id string, p worker.JobPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	query := `INSERT INTO ingestion_jobs (id, source_path, original_name, filename, destination, status, payload) VALUES ($1, $2, $3, $4, $5, 'queued', $6) ON CONFLICT (id) DO NOTHING`
	_, err = r.db.ExecContext(ctx, query, id, p.Path, p.OriginalName, p.Filename, p.Destination, string(payload))
	return err
}

// Claim moves a queued job, or one whose lease expired, to processing under
// a new lease token. The conditional update makes it safe against concurrent
// workers.
func (r *PostgresRepo) Claim(ctx context.Context, id string, lease time.Duration) (worker.Lease, error) {
	query := `
		UPDATE ingestion_jobs
		SET status = 'processing', attempts = attempts + 1, lease_token = $3,
		    leased_until = NOW() + make_interval(secs => $2), updated_at = NOW()
		WHERE id = $1 AND (status = 'queued' OR (status = 'processing' AND leased_until < NOW()))
		RETURNING attempts
	`
	l := worker.Lease{Token: uuid.NewString()}
	err := r.db.QueryRowContext(ctx, query, id, lease.Seconds(), l.Token).Scan(&l.Attempt)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return worker.Lease{}, err
	}

	var status Status
	if err := r.db.QueryRowContext(ctx, `SELECT status FROM ingestion_jobs WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.Lease{}, ErrNotFound
		}
		return worker.Lease{}, err
	}
	switch status {
	case StatusCompleted:
		return worker.Lease{}, worker.ErrJobCompleted
	case StatusFailed:
		return worker.Lease{}, worker.ErrJobFailed
	case StatusProcessing:
		return worker.Lease{}, worker.ErrJobLeased
	default:
		return worker.Lease{}, fmt.Errorf("job %s not claimable in status %s", id, status)
	}
}

// ExtendLease pushes leased_until out while token still holds the job.
func (r *PostgresRepo) ExtendLease(ctx context.Context, id, token string, lease time.Duration) error {
	query := `UPDATE ingestion_jobs SET leased_until = NOW() + make_interval(secs => $3), updated_at = NOW() WHERE id = $1 AND status = 'processing' AND lease_token = $2`
	return r.execHeld(ctx, query, id, token, lease.Seconds())
}

func (r *PostgresRepo) Complete(ctx context.Context, id, token, documentID string, chunkCount int) error {
	query := `UPDATE ingestion_jobs SET status = 'completed', document_id = $3, chunk_count = $4, error = '', leased_until = NULL, updated_at = NOW() WHERE id = $1 AND status = 'processing' AND lease_token = $2`
	return r.execHeld(ctx, query, id, token, documentID, chunkCount)
}

func (r *PostgresRepo) Requeue(ctx context.Context, id, token, reason string) error {
	return r.release(ctx, id, token, StatusQueued, reason)
}

func (r *PostgresRepo) FailAttempt(ctx context.Context, id, token, reason string) error {
	return r.release(ctx, id, token, StatusFailed, reason)
}

func (r *PostgresRepo) release(ctx context.Context, id, token string, status Status, reason string) error {
	query := `UPDATE ingestion_jobs SET status = $3, error = $4, leased_until = NULL, updated_at = NOW() WHERE id = $1 AND status = 'processing' AND lease_token = $2`
	return r.execHeld(ctx, query, id, token, status, reason)
}

// execHeld runs an update guarded by the lease token and maps "no row
// matched" to worker.ErrLeaseLost.
func (r *PostgresRepo) execHeld(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return worker.ErrLeaseLost
	}
	return nil
}

// Fail gives up on a job that is still queued or processing. Finished jobs
// are left alone.
func (r *PostgresRepo) Fail(ctx context.Context, id, reason string) error {
	query := `UPDATE ingestion_jobs SET status = 'failed', error = $2, leased_until = NULL, updated_at = NOW() WHERE id = $1 AND status IN ('queued', 'processing')`
	_, err := r.db.ExecContext(ctx, query, id, reason)
	return err
}
