package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"ferry/internal/queue"
	"ferry/internal/testsupport"
)

func TestFetchBatchSkipsExhaustedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fresh := testsupport.Enqueue(t, store, 1, "/data/a.tif")
	retried := testsupport.Enqueue(t, store, 2, "/data/b.tif")
	exhausted := testsupport.Enqueue(t, store, 3, "/data/c.tif")

	for i := 0; i < 2; i++ {
		if err := store.MarkFailed(ctx, retried.ID, "transient"); err != nil {
			t.Fatalf("MarkFailed failed: %v", err)
		}
	}
	for i := 0; i < queue.MaxRetries; i++ {
		if err := store.MarkFailed(ctx, exhausted.ID, fmt.Sprintf("attempt %d", i)); err != nil {
			t.Fatalf("MarkFailed failed: %v", err)
		}
	}

	tasks, err := store.FetchBatch(ctx, 50)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 eligible tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.RetryCount >= queue.MaxRetries {
			t.Fatalf("fetched exhausted task %#v", task)
		}
		if task.ID == exhausted.ID {
			t.Fatal("exhausted task must not be fetched")
		}
	}
	if tasks[0].ID != fresh.ID {
		t.Fatalf("expected least-retried task first, got %d", tasks[0].ID)
	}
	if tasks[1].RetryCount != 2 || tasks[1].Status != queue.StatusFailed || tasks[1].LastError != "transient" {
		t.Fatalf("unexpected retried task %#v", tasks[1])
	}

	limited, err := store.FetchBatch(ctx, 1)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestMarkFailedUnknownTask(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	err := store.MarkFailed(context.Background(), 999, "boom")
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordSuccessAndDelete(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	task := testsupport.Enqueue(t, store, 7, "/data/x.tif")
	upload := queue.CompletedUpload{
		ImageID:   task.ImageID,
		AcqID:     task.AcqID,
		LocalPath: task.LocalPath,
		ObjectKey: "data/x.tif",
		Bucket:    "test-bucket",
	}
	if err := store.RecordSuccess(ctx, upload); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if err := store.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := store.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("deleting a missing task should succeed, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Uploaded != 1 || stats.Pending != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRecordSuccessIsAppendOnly(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	upload := queue.CompletedUpload{ImageID: 1, AcqID: 2, LocalPath: "/a.tif", ObjectKey: "a.tif", Bucket: "b"}
	for i := 0; i < 2; i++ {
		if err := store.RecordSuccess(ctx, upload); err != nil {
			t.Fatalf("RecordSuccess failed: %v", err)
		}
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Uploaded != 2 {
		t.Fatalf("expected duplicate ledger rows in default mode, got %d", stats.Uploaded)
	}
}

func TestCompleteUploadIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	task := testsupport.Enqueue(t, store, 5, "/data/y.tif")
	upload := queue.CompletedUpload{
		ImageID:   task.ImageID,
		AcqID:     task.AcqID,
		LocalPath: task.LocalPath,
		ObjectKey: "data/y.tif",
		Bucket:    "test-bucket",
	}
	if err := store.CompleteUpload(ctx, task.ID, upload); err != nil {
		t.Fatalf("CompleteUpload failed: %v", err)
	}
	again := testsupport.Enqueue(t, store, 5, "/data/y.tif")
	if err := store.CompleteUpload(ctx, again.ID, upload); err != nil {
		t.Fatalf("second CompleteUpload failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Uploaded != 1 {
		t.Fatalf("expected one ledger row, got %d", stats.Uploaded)
	}
	if stats.Pending != 0 {
		t.Fatalf("expected both tasks deleted, got %d pending", stats.Pending)
	}
}

func TestConcurrentCompleteUploadWritesOneRow(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	upload := queue.CompletedUpload{ImageID: 5, AcqID: 1, LocalPath: "/data/z.tif", ObjectKey: "data/z.tif", Bucket: "test-bucket"}

	var ids []int64
	for i := 0; i < 8; i++ {
		ids = append(ids, testsupport.Enqueue(t, store, 5, upload.LocalPath).ID)
	}
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error { return store.CompleteUpload(ctx, id, upload) })
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("CompleteUpload failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Uploaded != 1 || stats.Pending != 0 {
		t.Fatalf("stats = %+v, want one ledger row and no pending", stats)
	}
}

func TestStatsListFailedAndRetry(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.Enqueue(t, store, 1, "/p/1.tif")
	failed := testsupport.Enqueue(t, store, 2, "/p/2.tif")
	exhausted := testsupport.Enqueue(t, store, 3, "/p/3.tif")

	if err := store.MarkFailed(ctx, failed.ID, "denied"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < queue.MaxRetries; i++ {
		if err := store.MarkFailed(ctx, exhausted.ID, "offline"); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := queue.Stats{Pending: 1, Failed: 1, Exhausted: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	listed, err := store.ListFailed(ctx, 10)
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 failed tasks, got %d", len(listed))
	}

	n, err := store.Retry(ctx)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one exhausted task reset, got %d", n)
	}

	n, err = store.Retry(ctx, failed.ID, 12345)
	if err != nil {
		t.Fatalf("Retry by id failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one task reset by id, got %d", n)
	}

	tasks, err := store.FetchBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected all tasks eligible after retry, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.RetryCount != 0 || task.Status != queue.StatusPending {
			t.Fatalf("task not reset: %#v", task)
		}
	}
}

func TestEnqueueRequiresPath(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.Enqueue(context.Background(), 1, 1, "  "); !errors.Is(err, queue.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestOpenSQLiteRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := queue.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := queue.OpenSQLite(context.Background(), path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*queue.SQLiteStore); !ok {
		t.Fatalf("expected SQLite store, got %T", store)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	cfg.Queue.Driver = "mysql"
	if _, err := queue.Open(context.Background(), cfg); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
