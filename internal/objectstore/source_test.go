package objectstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCredentials(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	return path
}

func TestReadExpiry(t *testing.T) {
	path := writeCredentials(t, `[default]
aws_access_key_id = AKIA
aws_secret_access_key = secret
expiration = 2026-05-01T10:30:00+02:00

[uploader]
aws_access_key_id = AKIB
aws_secret_access_key = secret
expiration = 2026-05-02T00:00:00Z

[static]
aws_access_key_id = AKIC
aws_secret_access_key = secret
`)

	got, err := ReadExpiry(path, "default")
	if err != nil {
		t.Fatalf("ReadExpiry failed: %v", err)
	}
	if want := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("default expiry = %v, want %v", got, want)
	}

	got, err = ReadExpiry(path, "uploader")
	if err != nil {
		t.Fatalf("ReadExpiry failed: %v", err)
	}
	if want := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("uploader expiry = %v, want %v", got, want)
	}

	for _, profile := range []string{"static", "missing"} {
		got, err = ReadExpiry(path, profile)
		if err != nil || !got.IsZero() {
			t.Fatalf("profile %s: expected zero expiry, got %v (%v)", profile, got, err)
		}
	}
}

func TestReadExpiryMissingFile(t *testing.T) {
	got, err := ReadExpiry(filepath.Join(t.TempDir(), "nope"), "default")
	if err != nil || !got.IsZero() {
		t.Fatalf("expected zero expiry for missing file, got %v (%v)", got, err)
	}
}

func TestReadExpiryRejectsGarbage(t *testing.T) {
	path := writeCredentials(t, "[default]\nexpiration = next tuesday\n")
	if _, err := ReadExpiry(path, "default"); err == nil {
		t.Fatal("expected parse error")
	}
}
