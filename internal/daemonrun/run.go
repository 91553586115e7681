package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"ferry/internal/breaker"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/notifications"
	"ferry/internal/objectstore"
	"ferry/internal/preflight"
	"ferry/internal/queue"
	"ferry/internal/upload"
	"ferry/internal/workflow"
)

// LockFileName guards against two uploaders draining the same queue from one host.
const LockFileName = "ferry.lock"

// ErrAlreadyRunning reports that another process holds the lock.
var ErrAlreadyRunning = errors.New("another ferry instance is already running")

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Registry receives the ferry collectors; nil uses the process default.
	Registry *prometheus.Registry
}

// Run starts the upload loop and blocks until it stops. A meltdown is
// returned as an error wrapping upload.ErrMeltdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	lock, err := AcquireLock(cfg.Paths.LogDir)
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck

	runID := uuid.NewString()
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))
	ctx = logging.WithRunID(ctx, runID)

	logger.Info("ferry starting",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("config", cfg.Describe()),
		logging.String("lock", lock.Path()),
	)

	store, err := queue.Open(ctx, cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open queue store", "queue_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue settings and database reachability"),
		)
		return err
	}

	provider, err := objectstore.NewProvider(ctx, objectstore.NewS3Source(cfg, logger),
		objectstore.WithRefreshBuffer(cfg.RefreshBuffer()),
		objectstore.WithLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		logging.ErrorWithContext(logger, "create storage client", "storage_client_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage settings and the credentials file"),
		)
		return err
	}

	logPreflight(logger, preflight.RunAll(ctx, cfg, store, provider))

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}
	observer, err := metrics.NewObserver(registerer)
	if err != nil {
		_ = store.Close()
		return err
	}
	server := metrics.NewServer(cfg.Metrics.Bind, gatherer, logger)
	if err := server.Start(ctx); err != nil {
		logging.WarnWithContext(logger, "metrics endpoint unavailable", "metrics_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.bind"),
		)
	}
	defer server.Stop()

	notifier := notifications.NewService(cfg, logger)
	br := breaker.New(cfg.Workflow.MeltdownThreshold)
	worker := upload.NewWorker(cfg, store, provider, br, logger,
		upload.WithObserver(observer),
		upload.WithNotifier(notifier),
	)
	manager := workflow.NewManager(cfg, store, worker, logger,
		workflow.WithNotifier(notifier),
		workflow.WithObserver(observer),
		workflow.WithBreaker(br),
	)

	err = manager.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("ferry shutting down", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

// AcquireLock takes the single-instance lock inside dir.
func AcquireLock(dir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(dir, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return lock, nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
		Development: opts.Development,
	})
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run `ferry preflight` for details"),
		)
	}
}
