package testsupport

import (
	"context"
	"testing"

	"ferry/internal/config"
	"ferry/internal/queue"
)

// MustOpenStore opens the SQLite queue named by cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.SQLiteStore {
	t.Helper()

	store, err := queue.OpenSQLite(context.Background(), cfg.Queue.SQLitePath)
	if err != nil {
		t.Fatalf("queue.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a pending task for path.
func Enqueue(t testing.TB, store queue.Store, imageID int64, path string) queue.Task {
	t.Helper()

	task, err := store.Enqueue(context.Background(), imageID, imageID*10, path)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return task
}
