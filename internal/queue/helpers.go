package queue

import (
	"errors"
	"strings"
	"time"
)

const taskColumns = "id, image_id, acq_id, path, status, retry_count, last_error, created_at, updated_at"

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func validatePath(localPath string) error {
	if strings.TrimSpace(localPath) == "" {
		return errors.Join(ErrInvalidTask, errors.New("local path is required"))
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
