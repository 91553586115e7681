package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ferry/internal/logging"
	"ferry/internal/queue"
	"ferry/internal/upload"
)

// Run processes the queue until ctx is cancelled or a meltdown occurs. The
// store is closed before Run returns. Cancellation returns nil; a meltdown
// returns an error wrapping upload.ErrMeltdown.
func (m *Manager) Run(ctx context.Context) error {
	defer m.closeStore()

	m.logger.Info("upload loop started",
		logging.Int("workers", m.workers),
		logging.Int("batch_size", m.batchSize),
		logging.Bool("batch_barrier", m.barrier),
	)

	stream := new(errgroup.Group)
	stream.SetLimit(m.workers)

	for !m.stopped(ctx) {
		tasks, err := m.store.FetchBatch(ctx, m.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			m.handleFetchError(ctx, err)
			continue
		}
		if len(tasks) == 0 {
			m.logger.Debug("queue empty", logging.Duration("poll_interval", m.pollInterval))
			m.wait(ctx, m.pollInterval)
			continue
		}

		var dispatched int
		if m.barrier {
			batch := new(errgroup.Group)
			batch.SetLimit(m.workers)
			dispatched = m.dispatch(ctx, batch, tasks)
			_ = batch.Wait()
		} else {
			dispatched = m.dispatch(ctx, stream, tasks)
		}
		if dispatched > 0 {
			m.observer.Batch()
			m.logger.Debug("batch dispatched", logging.Int("tasks", dispatched))
		} else if !m.stopped(ctx) {
			// Every fetched task is still running.
			m.wait(ctx, m.pollInterval)
		}

		if m.panicked.Swap(false) && !m.stopped(ctx) {
			m.wait(ctx, m.errorInterval)
		}
	}
	_ = stream.Wait()

	if err := m.meltdownErr(); err != nil {
		consecutive := m.threshold
		if m.breaker != nil {
			consecutive = m.breaker.Threshold()
		}
		logging.ErrorWithContext(m.logger, "upload loop stopped by meltdown", "meltdown_stop",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage endpoint health, then restart ferry"),
		)
		m.notifier.NotifyMeltdown(context.WithoutCancel(ctx), consecutive, err)
		return err
	}
	m.logger.Info("upload loop stopped")
	return nil
}

func (m *Manager) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || m.meltdownErr() != nil
}

// dispatch starts every task of a fetched batch on g and returns how many were
// started. It blocks while the pool is full. A meltdown does not cut the batch
// short; it only prevents the next fetch.
func (m *Manager) dispatch(ctx context.Context, g *errgroup.Group, tasks []queue.Task) int {
	var started int
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if !m.claim(task.ID) {
			continue
		}
		started++
		g.Go(func() error {
			defer m.release(task.ID)
			m.runTask(ctx, task)
			return nil
		})
	}
	return started
}

func (m *Manager) runTask(ctx context.Context, task queue.Task) {
	// The slot may free up after shutdown began.
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.panicked.Store(true)
			logging.ErrorWithContext(m.logger, "upload worker panicked", "worker_panic",
				logging.Int64(logging.FieldTaskID, task.ID),
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "report this crash; the task stays queued"),
			)
		}
	}()

	outcome, err := m.processor.Process(context.WithoutCancel(ctx), task)
	if outcome == upload.OutcomeMeltdown || errors.Is(err, upload.ErrMeltdown) {
		m.setMeltdown(err)
	}
}

func (m *Manager) handleFetchError(ctx context.Context, err error) {
	m.observer.FetchError()
	logging.ErrorWithContext(m.logger, "failed to fetch pending uploads", "queue_fetch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	m.wait(ctx, m.errorInterval)
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (m *Manager) claim(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inFlight[id]; ok {
		return false
	}
	m.inFlight[id] = struct{}{}
	return true
}

func (m *Manager) release(id int64) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}

func (m *Manager) setMeltdown(err error) {
	if err == nil {
		err = upload.ErrMeltdown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meltdown == nil {
		m.meltdown = err
	}
}

func (m *Manager) meltdownErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meltdown
}

func (m *Manager) closeStore() {
	if m.store == nil {
		return
	}
	if err := m.store.Close(); err != nil {
		m.logger.Warn("failed to close queue store", logging.Error(err),
			logging.String(logging.FieldEventType, "queue_close_failed"),
			logging.String(logging.FieldErrorHint, "ignore unless it repeats"),
		)
	}
}
