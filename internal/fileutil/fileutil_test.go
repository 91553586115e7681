package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.tif")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := CheckReadable(path)
	if err != nil {
		t.Fatalf("CheckReadable failed: %v", err)
	}
	if info.Size() != 4 {
		t.Fatalf("unexpected size %d", info.Size())
	}

	if _, err := CheckReadable(filepath.Join(dir, "missing.tif")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := CheckReadable(dir); !errors.Is(err, ErrNotRegular) {
		t.Fatalf("expected ErrNotRegular for directory, got %v", err)
	}
}

func TestCheckReadableRejectsUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission bits")
	}
	path := filepath.Join(t.TempDir(), "locked.tif")
	if err := os.WriteFile(path, []byte("data"), 0o000); err != nil {
		t.Fatal(err)
	}
	if _, err := CheckReadable(path); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestCheckWritableDir(t *testing.T) {
	dir := t.TempDir()
	if err := CheckWritableDir(dir); err != nil {
		t.Fatalf("CheckWritableDir failed: %v", err)
	}
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckWritableDir(file); err == nil {
		t.Fatal("expected error for regular file")
	}
}

func TestAppendLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "found.txt")
	if err := AppendLines(path, "a"); err != nil {
		t.Fatal(err)
	}
	if err := AppendLines(path, "b", "c"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a\nb\nc\n" {
		t.Fatalf("content mismatch: %q", got)
	}
}
