package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	dataDir    string
	s3         *fakeS3
}

// fakeS3 answers HEAD requests for a path-style bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]bool
}

func (f *fakeS3) add(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = true
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodHead {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if key == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	f.mu.Lock()
	ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Length", "4")
	w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
	w.WriteHeader(http.StatusOK)
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	for _, key := range []string{"FERRY_BUCKET", "ENDPOINT_URL", "SLACK_WEBHOOK_URL", "SLACK_URL", "FERRY_DATABASE_URL"} {
		t.Setenv(key, "")
	}

	base := t.TempDir()
	s3 := &fakeS3{bucket: "cli-bucket", objects: map[string]bool{}}
	server := httptest.NewServer(s3)
	t.Cleanup(server.Close)

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		dataDir:    filepath.Join(base, "data"),
		s3:         s3,
	}
	if err := os.MkdirAll(env.dataDir, 0o755); err != nil {
		t.Fatal(err)
	}

	content := fmt.Sprintf(`[paths]
log_dir = %q

[queue]
driver = "sqlite"
sqlite_path = %q

[storage]
endpoint_url = %q
region = "us-east-1"
bucket = "cli-bucket"
access_key_id = "test"
secret_access_key = "test"

[audit]
root_dir = %q
samples = 3
found_file = %q
missing_file = %q
seed = 7
`,
		filepath.Join(base, "logs"),
		filepath.Join(base, "queue.db"),
		server.URL,
		env.dataDir,
		filepath.Join(base, "found.txt"),
		filepath.Join(base, "missing.txt"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q, got:\n%s", substr, output)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("tiff"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "cli-bucket")
	requireContains(t, out, "queue=sqlite")
}

func TestQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	a := filepath.Join(env.dataDir, "a.tif")
	b := filepath.Join(env.dataDir, "b.tif")
	out, _, err := runCLI(t, []string{"queue", "add", "--image-id", "4", "--acq-id", "40", a, b}, env.configPath)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued task 1")
	requireContains(t, out, "Queued task 2")

	out, _, err = runCLI(t, []string{"queue", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "2")

	out, _, err = runCLI(t, []string{"queue", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	requireContains(t, out, "No failed tasks")

	out, _, err = runCLI(t, []string{"queue", "retry"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "No exhausted tasks")

	out, _, err = runCLI(t, []string{"queue", "retry", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("queue retry by id: %v", err)
	}
	requireContains(t, out, "Reset 1 task(s)")

	if _, _, err := runCLI(t, []string{"queue", "retry", "abc"}, env.configPath); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestVerifyReportsMissingObjects(t *testing.T) {
	env := setupCLITestEnv(t)

	var paths []string
	for _, name := range []string{"1.tif", "2.tif", "3.tif"} {
		path := filepath.Join(env.dataDir, name)
		writeFile(t, path)
		paths = append(paths, path)
	}
	env.s3.add(strings.TrimLeft(paths[0], "/"))
	env.s3.add(strings.TrimLeft(paths[1], "/"))

	out, _, err := runCLI(t, []string{"verify"}, env.configPath)
	if !errors.Is(err, errVerifyFailed) {
		t.Fatalf("expected verification failure, got %v\n%s", err, out)
	}
	requireContains(t, out, "Missing")
	requireContains(t, out, "3.tif")

	missing, err := os.ReadFile(filepath.Join(env.baseDir, "missing.txt"))
	if err != nil {
		t.Fatalf("read missing file: %v", err)
	}
	requireContains(t, string(missing), "3.tif")

	env.s3.add(strings.TrimLeft(paths[2], "/"))
	out, _, err = runCLI(t, []string{"verify"}, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	requireContains(t, out, "OK")
}

func TestVerifyEmptyTreeSucceeds(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"verify", "--samples", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	requireContains(t, out, "No files sampled")

	if _, _, err := runCLI(t, []string{"verify", "--samples", "0"}, env.configPath); err == nil {
		t.Fatal("expected error for non-positive samples")
	}
}

func TestPreflightPasses(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"preflight"}, env.configPath)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, `Bucket "cli-bucket"`)
	requireContains(t, out, "static keys configured")
}

func TestTestNotifyWithoutWebhook(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications not configured")
}

func TestTestNotifyDeliversMessage(t *testing.T) {
	env := setupCLITestEnv(t)

	var received string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		received = buf.String()
		_, _ = w.Write([]byte("ok"))
	}))
	defer hook.Close()
	t.Setenv("SLACK_WEBHOOK_URL", hook.URL)

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	requireContains(t, received, "Test Notification")
}

func TestParseTaskIDs(t *testing.T) {
	tests := []struct {
		args    []string
		want    int
		wantErr bool
	}{
		{args: nil, want: 0},
		{args: []string{"1", " 22 "}, want: 2},
		{args: []string{"0"}, wantErr: true},
		{args: []string{"x"}, wantErr: true},
	}
	for _, tt := range tests {
		ids, err := parseTaskIDs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseTaskIDs(%v) error = %v", tt.args, err)
		}
		if !tt.wantErr && len(ids) != tt.want {
			t.Fatalf("parseTaskIDs(%v) = %v", tt.args, ids)
		}
	}
}
