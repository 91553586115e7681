package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"ferry/internal/config"
	"ferry/internal/fileutil"
	"ferry/internal/objectstore"
)

const checkTimeout = 10 * time.Second

// CheckQueue verifies the queue database answers a ping.
func CheckQueue(ctx context.Context, store Pinger) Result {
	const name = "Queue database"
	if store == nil {
		return Result{Name: name, Detail: "not connected"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckBucket verifies the bucket exists and the credentials can reach it.
func CheckBucket(ctx context.Context, clients Clients, bucket string) Result {
	name := fmt.Sprintf("Bucket %q", bucket)
	if clients == nil {
		return Result{Name: name, Detail: "storage client unavailable"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	client, err := clients.Client(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	if err := client.HeadBucket(checkCtx, bucket); err != nil {
		switch objectstore.KindOf(err) {
		case objectstore.KindNotFound:
			return Result{Name: name, Detail: "bucket does not exist"}
		case objectstore.KindTransient:
			return Result{Name: name, Detail: "endpoint degraded: " + summarizeError(err)}
		default:
			return Result{Name: name, Detail: summarizeError(err)}
		}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckCredentialsFile verifies the shared credentials file is readable.
// Static keys in config make the file optional.
func CheckCredentialsFile(cfg *config.Config) Result {
	const name = "Credentials file"
	if staticKeys(cfg) {
		return Result{Name: name, Passed: true, Detail: "static keys configured"}
	}
	path := cfg.Storage.CredentialsFile
	if _, err := fileutil.CheckReadable(path); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (endpoint unreachable)"
	}
	return err.Error()
}
