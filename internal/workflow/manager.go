package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ferry/internal/breaker"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/notifications"
	"ferry/internal/queue"
	"ferry/internal/upload"
)

// Source supplies eligible tasks and is closed when the manager stops.
type Source interface {
	FetchBatch(ctx context.Context, limit int) ([]queue.Task, error)
	Close() error
}

// Processor runs a single task.
type Processor interface {
	Process(ctx context.Context, task queue.Task) (upload.Outcome, error)
}

// Manager coordinates queue polling and the worker pool.
type Manager struct {
	store     Source
	processor Processor
	logger    *slog.Logger
	notifier  notifications.Service
	observer  *metrics.Observer
	breaker   *breaker.Breaker

	workers       int
	batchSize     int
	barrier       bool
	pollInterval  time.Duration
	errorInterval time.Duration
	threshold     int

	mu       sync.Mutex
	inFlight map[int64]struct{}
	meltdown error
	panicked atomic.Bool
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

func WithObserver(o *metrics.Observer) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

// WithBreaker reports the breaker's count in meltdown notifications.
func WithBreaker(b *breaker.Breaker) ManagerOption {
	return func(m *Manager) { m.breaker = b }
}

// WithIntervals overrides the poll and error retry intervals from config.
func WithIntervals(poll, errorRetry time.Duration) ManagerOption {
	return func(m *Manager) {
		if poll > 0 {
			m.pollInterval = poll
		}
		if errorRetry > 0 {
			m.errorInterval = errorRetry
		}
	}
}

// NewManager constructs a manager sized from cfg.Workflow.
func NewManager(cfg *config.Config, store Source, processor Processor, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         store,
		processor:     processor,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		notifier:      notifications.NewService(nil, nil),
		workers:       max(cfg.Workflow.Workers, 1),
		batchSize:     max(cfg.Workflow.BatchSize, 1),
		barrier:       cfg.Workflow.BatchBarrier,
		pollInterval:  cfg.PollInterval(),
		errorInterval: cfg.ErrorRetryInterval(),
		threshold:     cfg.Workflow.MeltdownThreshold,
		inFlight:      make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
