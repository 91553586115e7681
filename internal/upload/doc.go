// Package upload moves one queued file into object storage.
//
// Worker.Process checks the local file, probes the destination key, transfers
// the bytes when the object is absent and then records the result in the
// ledger before removing the queue row. Transient storage errors feed the
// shared circuit breaker; once it trips Process reports OutcomeMeltdown and
// an error wrapping ErrMeltdown, and the caller must stop dispatching.
package upload
