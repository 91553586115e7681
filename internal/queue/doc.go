// Package queue persists the pending-upload queue and the completed-upload
// ledger.
//
// Store is implemented twice: PostgresStore talks to the shared upload
// database through a pgx connection pool, and SQLiteStore keeps a local queue
// file for development, single-host installs and tests. Every method acquires
// its own pooled connection; only CompleteUpload spans more than one statement
// in a transaction.
//
// A task is eligible for upload while retry_count is below MaxRetries. Tasks
// are deleted once their object is confirmed in the bucket; failures only bump
// retry_count and record the last error.
package queue
