package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir string `toml:"log_dir"`
}

// Queue contains connection settings for the pending-upload queue database.
type Queue struct {
	// Driver selects the backend: "postgres" (default) or "sqlite".
	Driver     string `toml:"driver"`
	DSN        string `toml:"dsn"`
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	Database   string `toml:"database"`
	SQLitePath string `toml:"sqlite_path"`
	MinConns   int    `toml:"min_conns"`
	MaxConns   int    `toml:"max_conns"`
}

// Storage contains object-storage endpoint and credential settings.
type Storage struct {
	EndpointURL          string `toml:"endpoint_url"`
	Region               string `toml:"region"`
	Bucket               string `toml:"bucket"`
	Profile              string `toml:"profile"`
	CredentialsFile      string `toml:"credentials_file"`
	AccessKeyID          string `toml:"access_key_id"`
	SecretAccessKey      string `toml:"secret_access_key"`
	RefreshBufferMinutes int    `toml:"refresh_buffer_minutes"`
	PathStyle            bool   `toml:"path_style"`
	PartSizeMB           int    `toml:"part_size_mb"`
}

// Workflow contains scheduler sizing and timing.
type Workflow struct {
	Workers            int  `toml:"workers"`
	BatchSize          int  `toml:"batch_size"`
	MeltdownThreshold  int  `toml:"meltdown_threshold"`
	PollInterval       int  `toml:"poll_interval"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	BatchBarrier       bool `toml:"batch_barrier"`
}

// Ledger contains policy switches for the completed-upload ledger.
type Ledger struct {
	// RecordExisting writes a ledger row when the destination object already
	// exists. Off by default: the row is deleted without a ledger entry.
	RecordExisting bool `toml:"record_existing"`
	// Transactional writes the ledger row idempotently and deletes the queue
	// row in one transaction.
	Transactional bool `toml:"transactional"`
}

// Notifications contains configuration for webhook error notifications.
type Notifications struct {
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
	Errors         bool   `toml:"errors"`
	Meltdown       bool   `toml:"meltdown"`
}

// Metrics contains the Prometheus endpoint bind address. Empty disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Audit contains settings for the random-sampling storage verifier.
type Audit struct {
	RootDir     string   `toml:"root_dir"`
	Samples     int      `toml:"samples"`
	MaxDepth    int      `toml:"max_depth"`
	PerDirCap   int      `toml:"per_dir_cap"`
	MaxAttempts int      `toml:"max_attempts"`
	Extensions  []string `toml:"extensions"`
	FoundFile   string   `toml:"found_file"`
	MissingFile string   `toml:"missing_file"`
	Seed        int64    `toml:"seed"`
}

// Config encapsulates all configuration values for ferry.
//
// Configuration sections by subsystem:
//   - Paths: log and lock directory
//   - Queue: pending-upload queue database
//   - Storage: S3-compatible endpoint, bucket and credentials
//   - Workflow: worker pool size, batch size, meltdown threshold, polling
//   - Ledger: completed-upload ledger policies
//   - Notifications: chat webhook error notifications
//   - Metrics: Prometheus endpoint
//   - Logging: log format and level
//   - Audit: random-sampling verifier
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Storage       Storage       `toml:"storage"`
	Workflow      Workflow      `toml:"workflow"`
	Ledger        Ledger        `toml:"ledger"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
	Audit         Audit         `toml:"audit"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ferry/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ferry.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	if c.Queue.Driver == DriverSQLite && c.Queue.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(c.Queue.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create queue directory: %w", err)
		}
	}
	return nil
}

// QueueDSN returns the Postgres connection string, building one from the
// discrete host/user fields when no DSN was given.
func (c *Config) QueueDSN() string {
	if dsn := strings.TrimSpace(c.Queue.DSN); dsn != "" {
		return dsn
	}
	var parts []string
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", key, quoteDSNValue(value)))
		}
	}
	add("host", c.Queue.Host)
	if c.Queue.Port > 0 {
		add("port", fmt.Sprint(c.Queue.Port))
	}
	add("user", c.Queue.User)
	add("password", c.Queue.Password)
	add("dbname", c.Queue.Database)
	return strings.Join(parts, " ")
}

func quoteDSNValue(value string) string {
	if !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// PollInterval returns the empty-queue sleep as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// ErrorRetryInterval returns the pause after a failed loop iteration.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

// RefreshBuffer returns the credential refresh margin before expiry.
func (c *Config) RefreshBuffer() time.Duration {
	return time.Duration(c.Storage.RefreshBufferMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
