package queue

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed postgres_schema.sql
var postgresSchemaSQL string

// PostgresStore is the production queue backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres creates a pool bounded by minConns..maxConns, verifies the
// connection and makes sure both tables exist.
func OpenPostgres(ctx context.Context, dsn string, minConns, maxConns int32) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse queue dsn: %w", err)
	}
	if minConns > 0 {
		poolCfg.MinConns = minConns
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create queue pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect queue database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure queue schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) FetchBatch(ctx context.Context, limit int) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+taskColumns+" FROM upload_to_s3 WHERE retry_count < $1 ORDER BY retry_count, id LIMIT $2",
		MaxRetries, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch pending uploads: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, scanPostgresTask)
	if err != nil {
		return nil, fmt.Errorf("fetch pending uploads: %w", err)
	}
	return tasks, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id int64, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE upload_to_s3
		SET status = $1, last_error = $2, retry_count = retry_count + 1, updated_at = now()
		WHERE id = $3`,
		string(StatusFailed), message, id,
	)
	if err != nil {
		return fmt.Errorf("mark task %d failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark task %d failed: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) RecordSuccess(ctx context.Context, upload CompletedUpload) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO uploaded_s3 (image_id, acq_id, path, object_key, bucket, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		upload.ImageID, upload.AcqID, upload.LocalPath, upload.ObjectKey, upload.Bucket, uploadedAt(upload),
	)
	if err != nil {
		return fmt.Errorf("record upload %s: %w", upload.LocalPath, err)
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM upload_to_s3 WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// CompleteUpload writes at most one ledger row per (path, bucket) and deletes
// the task in one transaction. The NOT EXISTS check alone races under READ
// COMMITTED, so completions of the same object are serialized on a
// transaction-scoped advisory lock keyed by bucket and path.
func (s *PostgresStore) CompleteUpload(ctx context.Context, id int64, upload CompletedUpload) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))",
		upload.Bucket+"/"+upload.LocalPath,
	); err != nil {
		return fmt.Errorf("lock ledger %s: %w", upload.LocalPath, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO uploaded_s3 (image_id, acq_id, path, object_key, bucket, uploaded_at)
		SELECT $1::bigint, $2::bigint, $3::text, $4::text, $5::text, $6::timestamptz
		WHERE NOT EXISTS (SELECT 1 FROM uploaded_s3 WHERE path = $3::text AND bucket = $5::text)`,
		upload.ImageID, upload.AcqID, upload.LocalPath, upload.ObjectKey, upload.Bucket, uploadedAt(upload),
	); err != nil {
		return fmt.Errorf("record upload %s: %w", upload.LocalPath, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM upload_to_s3 WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Enqueue(ctx context.Context, imageID, acqID int64, localPath string) (Task, error) {
	if err := validatePath(localPath); err != nil {
		return Task{}, err
	}
	rows, err := s.pool.Query(ctx,
		`INSERT INTO upload_to_s3 (image_id, acq_id, path, status, retry_count)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING `+taskColumns,
		imageID, acqID, localPath, string(StatusPending),
	)
	if err != nil {
		return Task{}, fmt.Errorf("enqueue %s: %w", localPath, err)
	}
	task, err := pgx.CollectExactlyOneRow(rows, scanPostgresTask)
	if err != nil {
		return Task{}, fmt.Errorf("enqueue %s: %w", localPath, err)
	}
	return task, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE retry_count < $1 AND status <> $2),
			COUNT(*) FILTER (WHERE retry_count < $1 AND status = $2),
			COUNT(*) FILTER (WHERE retry_count >= $1),
			(SELECT COUNT(*) FROM uploaded_s3)
		FROM upload_to_s3`,
		MaxRetries, string(StatusFailed),
	).Scan(&stats.Pending, &stats.Failed, &stats.Exhausted, &stats.Uploaded)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) ListFailed(ctx context.Context, limit int) ([]Task, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+taskColumns+" FROM upload_to_s3 WHERE status = $1 ORDER BY updated_at DESC, id DESC LIMIT $2",
		string(StatusFailed), normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list failed tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, scanPostgresTask)
	if err != nil {
		return nil, fmt.Errorf("list failed tasks: %w", err)
	}
	return tasks, nil
}

func (s *PostgresStore) Retry(ctx context.Context, ids ...int64) (int64, error) {
	var (
		query = "UPDATE upload_to_s3 SET retry_count = 0, status = $1, updated_at = now() WHERE retry_count >= $2"
		args  = []any{string(StatusPending), MaxRetries}
	)
	if len(ids) > 0 {
		query = "UPDATE upload_to_s3 SET retry_count = 0, status = $1, updated_at = now() WHERE id = ANY($2)"
		args = []any{string(StatusPending), ids}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func uploadedAt(upload CompletedUpload) time.Time {
	if upload.UploadedAt.IsZero() {
		return time.Now().UTC()
	}
	return upload.UploadedAt.UTC()
}

func scanPostgresTask(row pgx.CollectableRow) (Task, error) {
	var (
		task      Task
		status    string
		lastError *string
	)
	if err := row.Scan(
		&task.ID,
		&task.ImageID,
		&task.AcqID,
		&task.LocalPath,
		&status,
		&task.RetryCount,
		&lastError,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	task.Status = Status(status)
	if lastError != nil {
		task.LastError = *lastError
	}
	return task, nil
}
