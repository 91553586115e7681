// Package audit spot-checks that local files have reached object storage.
//
// Walking the full source tree is too slow for large acquisition shares, so
// the Sampler picks files by repeated bounded random descents from the root.
// The Verifier probes each sampled path under the same key the uploader uses
// and appends hits and misses to result files as it goes.
package audit
