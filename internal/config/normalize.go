package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	if err := c.normalizeAudit(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() error {
	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	if c.Queue.Driver == "" {
		c.Queue.Driver = defaultQueueDriver
	}

	if c.Queue.DSN == "" {
		c.Queue.DSN = lookupEnv("FERRY_DATABASE_URL")
	}
	if c.Queue.User == "" {
		c.Queue.User = lookupEnv("DB_USER")
	}
	if c.Queue.Password == "" {
		c.Queue.Password = lookupEnv("DB_PASS")
	}
	if c.Queue.Host == "" {
		c.Queue.Host = lookupEnv("DB_HOSTNAME")
	}
	if c.Queue.Database == "" {
		c.Queue.Database = lookupEnv("DB_NAME")
	}
	if c.Queue.Port == 0 {
		if raw := lookupEnv("DB_PORT"); raw != "" {
			port, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("DB_PORT: invalid port %q", raw)
			}
			c.Queue.Port = port
		}
	}

	if strings.TrimSpace(c.Queue.SQLitePath) == "" {
		c.Queue.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Queue.SQLitePath, err = expandPath(c.Queue.SQLitePath); err != nil {
		return fmt.Errorf("queue.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.EndpointURL = strings.TrimSpace(c.Storage.EndpointURL)
	if c.Storage.EndpointURL == "" {
		c.Storage.EndpointURL = lookupEnv("ENDPOINT_URL")
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = lookupEnv("AWS_REGION")
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = lookupEnv("FERRY_BUCKET")
	}
	c.Storage.Profile = strings.TrimSpace(c.Storage.Profile)
	if c.Storage.Profile == "" {
		c.Storage.Profile = defaultStorageProfile
	}
	c.Storage.AccessKeyID = strings.TrimSpace(c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = strings.TrimSpace(c.Storage.SecretAccessKey)

	if strings.TrimSpace(c.Storage.CredentialsFile) == "" {
		c.Storage.CredentialsFile = defaultCredentialsFile
	}
	var err error
	if c.Storage.CredentialsFile, err = expandPath(c.Storage.CredentialsFile); err != nil {
		return fmt.Errorf("storage.credentials_file: %w", err)
	}
	if c.Storage.PartSizeMB <= 0 {
		c.Storage.PartSizeMB = defaultPartSizeMB
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	if c.Notifications.WebhookURL == "" {
		c.Notifications.WebhookURL = lookupEnv("SLACK_WEBHOOK_URL")
	}
	if c.Notifications.WebhookURL == "" {
		c.Notifications.WebhookURL = lookupEnv("SLACK_URL")
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeAudit() error {
	if strings.TrimSpace(c.Audit.RootDir) != "" {
		var err error
		if c.Audit.RootDir, err = expandPath(c.Audit.RootDir); err != nil {
			return fmt.Errorf("audit.root_dir: %w", err)
		}
	}
	if c.Audit.MaxAttempts <= 0 {
		c.Audit.MaxAttempts = max(2000, c.Audit.Samples*200)
	}
	if len(c.Audit.Extensions) == 0 {
		c.Audit.Extensions = append([]string(nil), defaultAuditExtensions...)
	}
	for i, ext := range c.Audit.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Audit.Extensions[i] = ext
	}
	return nil
}

func lookupEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
