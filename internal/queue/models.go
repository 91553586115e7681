package queue

import (
	"context"
	"time"
)

// MaxRetries is the retry_count at which a task stops being fetched.
const MaxRetries = 5

// Status is the coarse state recorded on a queue row.
type Status string

const (
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Task is one row of upload_to_s3.
type Task struct {
	ID         int64
	ImageID    int64
	AcqID      int64
	LocalPath  string
	Status     Status
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Exhausted reports whether the task has used up its retries.
func (t Task) Exhausted() bool { return t.RetryCount >= MaxRetries }

// CompletedUpload is one row of the uploaded_s3 ledger.
type CompletedUpload struct {
	ImageID    int64
	AcqID      int64
	LocalPath  string
	ObjectKey  string
	Bucket     string
	UploadedAt time.Time
}

// Stats summarizes queue and ledger contents.
type Stats struct {
	Pending   int64
	Failed    int64
	Exhausted int64
	Uploaded  int64
}

// Store is the work-queue contract shared by both backends.
type Store interface {
	// FetchBatch returns up to limit tasks with retry_count below MaxRetries,
	// least-retried first.
	FetchBatch(ctx context.Context, limit int) ([]Task, error)
	// MarkFailed sets status failed, records message and increments retry_count.
	MarkFailed(ctx context.Context, id int64, message string) error
	// RecordSuccess appends one ledger row.
	RecordSuccess(ctx context.Context, upload CompletedUpload) error
	// DeleteTask removes the task. Deleting a missing task is not an error.
	DeleteTask(ctx context.Context, id int64) error
	// CompleteUpload inserts the ledger row unless one already exists for the
	// same path and bucket, and deletes the task, in one transaction.
	CompleteUpload(ctx context.Context, id int64, upload CompletedUpload) error

	Enqueue(ctx context.Context, imageID, acqID int64, localPath string) (Task, error)
	Stats(ctx context.Context) (Stats, error)
	ListFailed(ctx context.Context, limit int) ([]Task, error)
	// Retry resets retry_count and status on the given tasks, or on every
	// exhausted task when ids is empty. It returns the number of rows changed.
	Retry(ctx context.Context, ids ...int64) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
