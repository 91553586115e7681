package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore keeps the queue in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the queue database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers and keeps per-connection pragmas in effect.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FetchBatch(ctx context.Context, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM upload_to_s3 WHERE retry_count < ? ORDER BY retry_count, id LIMIT ?",
		MaxRetries, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch pending uploads: %w", err)
	}
	return collectSQLiteTasks(rows)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id int64, message string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE upload_to_s3
		SET status = ?, last_error = ?, retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?`,
		string(StatusFailed), message, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark task %d failed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark task %d failed: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) RecordSuccess(ctx context.Context, upload CompletedUpload) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO uploaded_s3 (image_id, acq_id, path, object_key, bucket, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		upload.ImageID, upload.AcqID, upload.LocalPath, upload.ObjectKey, upload.Bucket, formatTime(s.uploadedAt(upload)),
	)
	if err != nil {
		return fmt.Errorf("record upload %s: %w", upload.LocalPath, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, "DELETE FROM upload_to_s3 WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) CompleteUpload(ctx context.Context, id int64, upload CompletedUpload) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin complete tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO uploaded_s3 (image_id, acq_id, path, object_key, bucket, uploaded_at)
			SELECT ?, ?, ?, ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM uploaded_s3 WHERE path = ? AND bucket = ?)`,
			upload.ImageID, upload.AcqID, upload.LocalPath, upload.ObjectKey, upload.Bucket, formatTime(s.uploadedAt(upload)),
			upload.LocalPath, upload.Bucket,
		); err != nil {
			return fmt.Errorf("record upload %s: %w", upload.LocalPath, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM upload_to_s3 WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete task %d: %w", id, err)
		}
		return tx.Commit()
	})
}

func (s *SQLiteStore) Enqueue(ctx context.Context, imageID, acqID int64, localPath string) (Task, error) {
	if err := validatePath(localPath); err != nil {
		return Task{}, err
	}
	now := s.now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO upload_to_s3 (image_id, acq_id, path, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		imageID, acqID, localPath, string(StatusPending), formatTime(now), formatTime(now),
	)
	if err != nil {
		return Task{}, fmt.Errorf("enqueue %s: %w", localPath, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("enqueue %s: %w", localPath, err)
	}
	return Task{
		ID:        id,
		ImageID:   imageID,
		AcqID:     acqID,
		LocalPath: localPath,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN retry_count < ? AND status <> ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN retry_count < ? AND status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN retry_count >= ? THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(1) FROM uploaded_s3)
		FROM upload_to_s3`,
		MaxRetries, string(StatusFailed), MaxRetries, string(StatusFailed), MaxRetries,
	).Scan(&stats.Pending, &stats.Failed, &stats.Exhausted, &stats.Uploaded)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) ListFailed(ctx context.Context, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM upload_to_s3 WHERE status = ? ORDER BY updated_at DESC, id DESC LIMIT ?",
		string(StatusFailed), normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list failed tasks: %w", err)
	}
	return collectSQLiteTasks(rows)
}

func (s *SQLiteStore) Retry(ctx context.Context, ids ...int64) (int64, error) {
	query := "UPDATE upload_to_s3 SET retry_count = 0, status = ?, updated_at = ? WHERE retry_count >= ?"
	args := []any{string(StatusPending), formatTime(s.now()), MaxRetries}
	if len(ids) > 0 {
		query = "UPDATE upload_to_s3 SET retry_count = 0, status = ?, updated_at = ? WHERE id IN (" + makePlaceholders(len(ids)) + ")"
		args = args[:2]
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry tasks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) uploadedAt(upload CompletedUpload) time.Time {
	if upload.UploadedAt.IsZero() {
		return s.now()
	}
	return upload.UploadedAt
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func collectSQLiteTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanSQLiteTask(scanner interface{ Scan(dest ...any) error }) (Task, error) {
	var (
		task       Task
		status     string
		lastError  sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&task.ImageID,
		&task.AcqID,
		&task.LocalPath,
		&status,
		&task.RetryCount,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return Task{}, err
	}
	task.Status = Status(status)
	task.LastError = lastError.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}
