package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("queue.driver: unsupported value %q (expected postgres or sqlite)", c.Queue.Driver)
	}
	if c.Queue.MinConns <= 0 {
		return errors.New("queue.min_conns must be positive")
	}
	if c.Queue.MaxConns < c.Queue.MinConns {
		return errors.New("queue.max_conns must be at least queue.min_conns")
	}
	if c.Queue.Port < 0 || c.Queue.Port > 65535 {
		return fmt.Errorf("queue.port: invalid value %d", c.Queue.Port)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Bucket == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/ferry/config.toml"
		}
		return fmt.Errorf("storage.bucket is required. Set FERRY_BUCKET env var or edit %s (create with 'ferry config init')", defaultPath)
	}
	if c.Storage.EndpointURL != "" {
		parsed, err := url.Parse(c.Storage.EndpointURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("storage.endpoint_url: invalid url %q", c.Storage.EndpointURL)
		}
	}
	if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
		return errors.New("storage.access_key_id and storage.secret_access_key must be set together")
	}
	if c.Storage.RefreshBufferMinutes < 0 {
		return errors.New("storage.refresh_buffer_minutes must not be negative")
	}
	if c.Storage.PartSizeMB < 5 {
		return errors.New("storage.part_size_mb must be at least 5")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.batch_size":           c.Workflow.BatchSize,
		"workflow.meltdown_threshold":   c.Workflow.MeltdownThreshold,
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.WebhookURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.WebhookURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("notifications.webhook_url: invalid url %q", c.Notifications.WebhookURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateAudit() error {
	if err := ensurePositiveMap(map[string]int{
		"audit.samples":      c.Audit.Samples,
		"audit.max_depth":    c.Audit.MaxDepth,
		"audit.per_dir_cap":  c.Audit.PerDirCap,
		"audit.max_attempts": c.Audit.MaxAttempts,
	}); err != nil {
		return err
	}
	for _, ext := range c.Audit.Extensions {
		if ext == "" || ext == "." {
			return errors.New("audit.extensions must not contain empty values")
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

// Describe returns a redacted, single-line summary suitable for startup logs.
func (c *Config) Describe() string {
	return fmt.Sprintf("queue=%s bucket=%s endpoint=%s workers=%d batch=%d meltdown=%d barrier=%t",
		c.Queue.Driver, c.Storage.Bucket, valueOr(c.Storage.EndpointURL, "aws-default"),
		c.Workflow.Workers, c.Workflow.BatchSize, c.Workflow.MeltdownThreshold, c.Workflow.BatchBarrier)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
