package testsupport

import (
	"path/filepath"
	"testing"

	"ferry/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The queue uses SQLite inside the temp dir and the bucket is "test-bucket".
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Queue.Driver = config.DriverSQLite
	cfgVal.Queue.SQLitePath = filepath.Join(base, "queue", "queue.db")
	cfgVal.Storage.Bucket = "test-bucket"
	cfgVal.Storage.CredentialsFile = filepath.Join(base, "aws", "credentials")
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Audit.RootDir = filepath.Join(base, "data")
	cfgVal.Audit.MaxAttempts = 2000

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWorkflow overrides worker count, batch size and meltdown threshold.
func WithWorkflow(workers, batchSize, threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = workers
		b.cfg.Workflow.BatchSize = batchSize
		b.cfg.Workflow.MeltdownThreshold = threshold
	}
}

// WithLedger sets the ledger policies.
func WithLedger(recordExisting, transactional bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.RecordExisting = recordExisting
		b.cfg.Ledger.Transactional = transactional
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
