// Package metrics exports upload pipeline counters to Prometheus.
//
// An Observer registers its collectors on a caller-supplied Registerer and
// is safe to share across workers. A nil *Observer ignores every call so
// components can be built without metrics in tests.
package metrics
