package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserverRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver(reg)
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}

	o.TaskOutcome(OutcomeSucceeded)
	o.TaskOutcome(OutcomeSucceeded)
	o.TaskOutcome(OutcomeSoftFailed)
	o.TransientError("head")
	o.BreakerCount(3)
	o.RecordUpload(120*time.Millisecond, 2048)
	o.Batch()
	o.FetchError()

	if got := testutil.ToFloat64(o.tasks.WithLabelValues(OutcomeSucceeded)); got != 2 {
		t.Fatalf("succeeded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(o.tasks.WithLabelValues(OutcomeSoftFailed)); got != 1 {
		t.Fatalf("soft_failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.transientErrors.WithLabelValues("head")); got != 1 {
		t.Fatalf("transient head = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.breaker); got != 3 {
		t.Fatalf("breaker = %v, want 3", got)
	}
	if got := testutil.ToFloat64(o.uploadedBytes); got != 2048 {
		t.Fatalf("bytes = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(o.batches); got != 1 {
		t.Fatalf("batches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.fetchErrors); got != 1 {
		t.Fatalf("fetch errors = %v, want 1", got)
	}
}

func TestNewObserverReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewObserver(reg)
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}
	second, err := NewObserver(reg)
	if err != nil {
		t.Fatalf("second NewObserver failed: %v", err)
	}
	first.Batch()
	second.Batch()
	if got := testutil.ToFloat64(first.batches); got != 2 {
		t.Fatalf("expected shared counter, got %v", got)
	}
}

func TestNilObserverIsNoop(t *testing.T) {
	var o *Observer
	o.TaskOutcome(OutcomeMeltdown)
	o.TransientError("put")
	o.BreakerCount(1)
	o.RecordUpload(time.Second, 1)
	o.Batch()
	o.FetchError()
}

func TestServerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver(reg)
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}
	o.TaskOutcome(OutcomeSkippedExisting)

	if NewServer("  ", reg, nil) != nil {
		t.Fatal("expected nil server for empty bind")
	}

	srv := NewServer("127.0.0.1:0", reg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `ferry_tasks_total{outcome="skipped_existing"} 1`) {
		t.Fatalf("metrics output missing task counter:\n%s", body)
	}
}
