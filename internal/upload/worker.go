package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"ferry/internal/breaker"
	"ferry/internal/config"
	"ferry/internal/fileutil"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/notifications"
	"ferry/internal/objectstore"
	"ferry/internal/queue"
)

// Queue is the subset of queue.Store a worker writes to.
type Queue interface {
	MarkFailed(ctx context.Context, id int64, message string) error
	RecordSuccess(ctx context.Context, upload queue.CompletedUpload) error
	DeleteTask(ctx context.Context, id int64) error
	CompleteUpload(ctx context.Context, id int64, upload queue.CompletedUpload) error
}

// Clients hands out the current storage client.
type Clients interface {
	Client(ctx context.Context) (objectstore.Client, error)
}

// Worker processes single tasks. It holds no per-task state and is shared by
// every goroutine of the pool.
type Worker struct {
	queue    Queue
	clients  Clients
	breaker  *breaker.Breaker
	bucket   string
	ledger   config.Ledger
	logger   *slog.Logger
	observer *metrics.Observer
	notifier notifications.Service
	now      func() time.Time
}

// Option configures optional Worker collaborators.
type Option func(*Worker)

func WithObserver(o *metrics.Observer) Option {
	return func(w *Worker) { w.observer = o }
}

func WithNotifier(n notifications.Service) Option {
	return func(w *Worker) {
		if n != nil {
			w.notifier = n
		}
	}
}

// WithClock overrides the ledger timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker builds a worker for cfg.Storage.Bucket using the ledger policies in cfg.Ledger.
func NewWorker(cfg *config.Config, q Queue, clients Clients, br *breaker.Breaker, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		clients:  clients,
		breaker:  br,
		bucket:   cfg.Storage.Bucket,
		ledger:   cfg.Ledger,
		logger:   logging.NewComponentLogger(logger, "upload"),
		notifier: notifications.NewService(nil, nil),
		now:      time.Now,
	}
	if w.breaker == nil {
		w.breaker = breaker.New(cfg.Workflow.MeltdownThreshold)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Breaker returns the breaker shared by this worker.
func (w *Worker) Breaker() *breaker.Breaker { return w.breaker }

// Process runs one task to completion. The returned error describes why the
// task did not succeed; only an error wrapping ErrMeltdown is terminal for the run.
func (w *Worker) Process(ctx context.Context, task queue.Task) (Outcome, error) {
	ctx = logging.WithTaskID(ctx, task.ID)
	logger := logging.WithContext(ctx, w.logger).With(logging.String("path", task.LocalPath))

	outcome, err := w.process(ctx, logger, task)
	w.observer.TaskOutcome(outcome.String())
	return outcome, err
}

func (w *Worker) process(ctx context.Context, logger *slog.Logger, task queue.Task) (Outcome, error) {
	info, err := fileutil.CheckReadable(task.LocalPath)
	if err != nil {
		return w.fail(ctx, logger, task, fmt.Errorf("%w: %w", ErrLocalFile, err), true)
	}

	key := objectstore.DeriveKey(task.LocalPath)
	logger = logger.With(logging.String("key", key))

	client, err := w.clients.Client(ctx)
	if err != nil {
		return w.fail(ctx, logger, task, err, true)
	}

	_, err = client.Head(ctx, w.bucket, key)
	switch {
	case err == nil:
		return w.skipExisting(ctx, logger, task, key)
	case objectstore.IsNotFound(err):
	case objectstore.IsTransient(err):
		return w.transient(ctx, logger, task, "head", err)
	default:
		return w.fail(ctx, logger, task, err, true)
	}

	file, err := os.Open(task.LocalPath)
	if err != nil {
		return w.fail(ctx, logger, task, fmt.Errorf("%w: %w", ErrLocalFile, err), true)
	}
	defer file.Close()

	start := w.now()
	if err := client.Put(ctx, w.bucket, key, file, info.Size()); err != nil {
		if objectstore.IsTransient(err) {
			return w.transient(ctx, logger, task, "put", err)
		}
		return w.fail(ctx, logger, task, err, true)
	}
	elapsed := w.now().Sub(start)

	w.breaker.Reset()
	w.observer.BreakerCount(0)
	w.observer.RecordUpload(elapsed, info.Size())
	logger.Info("object uploaded",
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", elapsed),
	)
	if err := w.complete(ctx, logger, task, key); err != nil {
		return w.fail(ctx, logger, task, err, true)
	}
	return OutcomeSucceeded, nil
}

func (w *Worker) upload(task queue.Task, key string) queue.CompletedUpload {
	return queue.CompletedUpload{
		ImageID:    task.ImageID,
		AcqID:      task.AcqID,
		LocalPath:  task.LocalPath,
		ObjectKey:  key,
		Bucket:     w.bucket,
		UploadedAt: w.now().UTC(),
	}
}

// complete writes the ledger row and removes the queue row. A ledger failure
// is returned wrapped in ErrLedger; the object is already stored, so the retry
// finds it and writes the missing row. A failed delete after a recorded row is
// only logged.
func (w *Worker) complete(ctx context.Context, logger *slog.Logger, task queue.Task, key string) error {
	if w.ledger.Transactional {
		if err := w.queue.CompleteUpload(ctx, task.ID, w.upload(task, key)); err != nil {
			return fmt.Errorf("%w: %w", ErrLedger, err)
		}
		return nil
	}
	if err := w.queue.RecordSuccess(ctx, w.upload(task, key)); err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}
	w.delete(ctx, logger, task)
	return nil
}

func (w *Worker) delete(ctx context.Context, logger *slog.Logger, task queue.Task) {
	if err := w.queue.DeleteTask(ctx, task.ID); err != nil {
		logger.Error("failed to delete queue row", logging.Error(err),
			logging.String(logging.FieldEventType, "queue_delete_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
}

func (w *Worker) skipExisting(ctx context.Context, logger *slog.Logger, task queue.Task, key string) (Outcome, error) {
	logger.Info("object already stored; dropping task")
	if !w.ledger.RecordExisting && !missingLedger(task) {
		w.delete(ctx, logger, task)
		return OutcomeSkippedExisting, nil
	}
	if err := w.complete(ctx, logger, task, key); err != nil {
		return w.fail(ctx, logger, task, err, true)
	}
	return OutcomeSkippedExisting, nil
}

// missingLedger reports whether the previous attempt stored the object but
// could not write its ledger row.
func missingLedger(task queue.Task) bool {
	return strings.HasPrefix(task.LastError, ErrLedger.Error())
}

func (w *Worker) transient(ctx context.Context, logger *slog.Logger, task queue.Task, op string, cause error) (Outcome, error) {
	w.observer.TransientError(op)
	count, tripped := w.breaker.IncrementAndCheck()
	w.observer.BreakerCount(count)
	if tripped {
		logging.ErrorWithContext(logger, "circuit breaker tripped", "storage_meltdown",
			logging.String("op", op),
			logging.Int("consecutive", count),
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "check storage endpoint health, then restart ferry"),
		)
		return OutcomeMeltdown, fmt.Errorf("%w after %d consecutive transient errors: %w", ErrMeltdown, count, cause)
	}
	return w.fail(ctx, logger, task, cause, false)
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, task queue.Task, cause error, notify bool) (Outcome, error) {
	logging.WarnWithContext(logger, "upload failed", "upload_failed",
		logging.Int("retry_count", task.RetryCount+1),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, hintFor(cause)),
	)
	if err := w.queue.MarkFailed(ctx, task.ID, cause.Error()); err != nil {
		logger.Error("failed to mark task failed", logging.Error(err),
			logging.String(logging.FieldEventType, "queue_update_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	if notify {
		w.notifier.NotifyError(ctx, cause, fmt.Sprintf("task %d (%s)", task.ID, task.LocalPath))
	}
	return OutcomeSoftFailed, cause
}

func hintFor(err error) string {
	switch objectstore.KindOf(err) {
	case objectstore.KindTransient:
		return "storage backend degraded; the task will be retried"
	case objectstore.KindNotFound:
		return "check bucket name and endpoint"
	}
	if errors.Is(err, ErrLocalFile) {
		return "check that the source file exists and is readable"
	}
	if errors.Is(err, ErrLedger) {
		return "check queue database access; the stored object is recorded on retry"
	}
	return "check storage credentials and bucket permissions"
}
