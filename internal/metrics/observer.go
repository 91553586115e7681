package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ferry"

// Outcome labels for ferry_tasks_total.
const (
	OutcomeSucceeded       = "succeeded"
	OutcomeSkippedExisting = "skipped_existing"
	OutcomeSoftFailed      = "soft_failed"
	OutcomeMeltdown        = "meltdown"
)

// Observer records task outcomes, transfer volume and breaker state.
type Observer struct {
	tasks           *prometheus.CounterVec
	transientErrors *prometheus.CounterVec
	breaker         prometheus.Gauge
	uploadDuration  prometheus.Histogram
	uploadedBytes   prometheus.Counter
	batches         prometheus.Counter
	fetchErrors     prometheus.Counter
}

// NewObserver registers the ferry collectors on reg, or on the default
// registerer when reg is nil. Collectors already registered by an earlier
// observer are reused.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{}
	var err error
	if o.tasks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Processed upload tasks by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if o.transientErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transient_errors_total",
		Help:      "Transient storage errors by operation.",
	}, []string{"op"})); err != nil {
		return nil, err
	}
	if o.breaker, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_consecutive",
		Help:      "Consecutive transient failures counted by the circuit breaker.",
	})); err != nil {
		return nil, err
	}
	if o.uploadDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_duration_seconds",
		Help:      "Duration of successful object transfers.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})); err != nil {
		return nil, err
	}
	if o.uploadedBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploaded_bytes_total",
		Help:      "Cumulative payload size uploaded to object storage.",
	})); err != nil {
		return nil, err
	}
	if o.batches, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Non-empty batches dispatched by the scheduler.",
	})); err != nil {
		return nil, err
	}
	if o.fetchErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_errors_total",
		Help:      "Failed queue fetches.",
	})); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metrics collector: %w", err)
	}
	return c, nil
}

// TaskOutcome counts one finished task.
func (o *Observer) TaskOutcome(outcome string) {
	if o == nil {
		return
	}
	o.tasks.WithLabelValues(outcome).Inc()
}

// TransientError counts a transient failure of op ("head" or "put").
func (o *Observer) TransientError(op string) {
	if o == nil {
		return
	}
	o.transientErrors.WithLabelValues(op).Inc()
}

// BreakerCount publishes the breaker's current consecutive count.
func (o *Observer) BreakerCount(n int) {
	if o == nil {
		return
	}
	o.breaker.Set(float64(n))
}

// RecordUpload tracks a successful transfer.
func (o *Observer) RecordUpload(duration time.Duration, size int64) {
	if o == nil {
		return
	}
	o.uploadDuration.Observe(duration.Seconds())
	if size > 0 {
		o.uploadedBytes.Add(float64(size))
	}
}

func (o *Observer) Batch() {
	if o == nil {
		return
	}
	o.batches.Inc()
}

func (o *Observer) FetchError() {
	if o == nil {
		return
	}
	o.fetchErrors.Inc()
}
