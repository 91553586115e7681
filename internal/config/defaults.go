package config

const (
	// DriverPostgres selects the pgx-backed queue store.
	DriverPostgres = "postgres"
	// DriverSQLite selects the embedded SQLite queue store.
	DriverSQLite = "sqlite"
)

const (
	defaultLogDir               = "~/.local/share/ferry/logs"
	defaultSQLitePath           = "~/.local/share/ferry/queue.db"
	defaultQueueDriver          = DriverPostgres
	defaultQueueMinConns        = 1
	defaultQueueMaxConns        = 20
	defaultStorageProfile       = "default"
	defaultCredentialsFile      = "~/.aws/credentials"
	defaultRefreshBufferMinutes = 10
	defaultPartSizeMB           = 64
	defaultWorkers              = 3
	defaultBatchSize            = 50
	defaultMeltdownThreshold    = 5
	defaultPollInterval         = 30
	defaultErrorRetryInterval   = 10
	defaultNotifyTimeout        = 5
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultAuditSamples         = 10000
	defaultAuditMaxDepth        = 12
	defaultAuditPerDirCap       = 2000
	defaultAuditFoundFile       = "verifier_found.txt"
	defaultAuditMissingFile     = "verifier_missing.txt"
)

var defaultAuditExtensions = []string{".tif", ".tiff"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Queue: Queue{
			Driver:     defaultQueueDriver,
			SQLitePath: defaultSQLitePath,
			MinConns:   defaultQueueMinConns,
			MaxConns:   defaultQueueMaxConns,
		},
		Storage: Storage{
			Profile:              defaultStorageProfile,
			CredentialsFile:      defaultCredentialsFile,
			RefreshBufferMinutes: defaultRefreshBufferMinutes,
			PathStyle:            true,
			PartSizeMB:           defaultPartSizeMB,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			BatchSize:          defaultBatchSize,
			MeltdownThreshold:  defaultMeltdownThreshold,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			BatchBarrier:       true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Errors:         true,
			Meltdown:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Audit: Audit{
			Samples:     defaultAuditSamples,
			MaxDepth:    defaultAuditMaxDepth,
			PerDirCap:   defaultAuditPerDirCap,
			Extensions:  append([]string(nil), defaultAuditExtensions...),
			FoundFile:   defaultAuditFoundFile,
			MissingFile: defaultAuditMissingFile,
		},
	}
}
