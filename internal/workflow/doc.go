// Package workflow drains the upload queue.
//
// The Manager fetches batches of eligible tasks, hands them to a bounded
// errgroup pool and, by default, waits for every task of a batch before
// fetching the next one. With the batch barrier disabled the pool streams
// across batches and skips tasks that are still in flight.
//
// A meltdown reported by any task stops dispatch permanently: running tasks
// finish, the store is closed and Run returns an error wrapping
// upload.ErrMeltdown. Fetch errors and worker panics are logged and retried
// after the configured error interval. Tasks run on a context detached from
// cancellation so their queue and ledger writes complete during shutdown.
package workflow
