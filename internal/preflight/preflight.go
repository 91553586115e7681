package preflight

import (
	"context"
	"strings"

	"ferry/internal/config"
	"ferry/internal/objectstore"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is satisfied by queue.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Clients hands out the current storage client.
type Clients interface {
	Client(ctx context.Context) (objectstore.Client, error)
}

// RunAll executes every check. A nil store or clients reports that
// dependency as unavailable.
func RunAll(ctx context.Context, cfg *config.Config, store Pinger, clients Clients) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckQueue(ctx, store),
		CheckBucket(ctx, clients, cfg.Storage.Bucket),
		CheckCredentialsFile(cfg),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func staticKeys(cfg *config.Config) bool {
	return strings.TrimSpace(cfg.Storage.AccessKeyID) != "" && strings.TrimSpace(cfg.Storage.SecretAccessKey) != ""
}
