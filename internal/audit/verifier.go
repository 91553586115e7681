package audit

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"ferry/internal/fileutil"
	"ferry/internal/logging"
	"ferry/internal/objectstore"
)

// MaxMissingExamples bounds Summary.MissingExamples.
const MaxMissingExamples = 10

// Clients hands out the current storage client.
type Clients interface {
	Client(ctx context.Context) (objectstore.Client, error)
}

// Missing describes one sampled file absent from storage.
type Missing struct {
	LocalPath string
	Key       string
	Reason    string
}

// Summary totals one verification run.
type Summary struct {
	Checked         int
	Found           int
	Missing         int
	Errors          int
	MissingExamples []Missing
}

// OK reports whether every checked file was found.
func (s Summary) OK() bool { return s.Missing == 0 && s.Errors == 0 }

// Verifier checks sampled paths against a bucket.
type Verifier struct {
	Clients     Clients
	Bucket      string
	FoundFile   string
	MissingFile string
	Logger      *slog.Logger
}

// Run checks every path from seq. Result files are appended per path so an
// interrupted run keeps its progress.
func (v *Verifier) Run(ctx context.Context, seq iter.Seq[string]) (Summary, error) {
	logger := logging.NewComponentLogger(v.Logger, "audit")
	var summary Summary
	for path := range seq {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++
		key := objectstore.DeriveKey(path)
		uri := fmt.Sprintf("s3://%s/%s", v.Bucket, key)

		client, err := v.Clients.Client(ctx)
		if err != nil {
			return summary, err
		}
		_, err = client.Head(ctx, v.Bucket, key)
		switch kind := objectstore.KindOf(err); {
		case err == nil:
			summary.Found++
			logger.Debug("object found", logging.String("uri", uri))
			v.record(logger, v.FoundFile, fmt.Sprintf("%s\t%s", path, uri))
		case kind == objectstore.KindNotFound || kind == objectstore.KindPermanent:
			summary.Missing++
			reason := "not found"
			if kind == objectstore.KindPermanent {
				reason = err.Error()
			}
			logger.Info("object missing", logging.String("uri", uri), logging.String("reason", reason))
			if len(summary.MissingExamples) < MaxMissingExamples {
				summary.MissingExamples = append(summary.MissingExamples, Missing{LocalPath: path, Key: key, Reason: reason})
			}
			v.record(logger, v.MissingFile, fmt.Sprintf("%s\t%s\t%s", path, uri, reason))
		default:
			summary.Errors++
			logging.WarnWithContext(logger, "object check failed", "verify_check_failed",
				logging.String("uri", uri),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check storage endpoint health"),
			)
		}
	}
	return summary, nil
}

func (v *Verifier) record(logger *slog.Logger, path, line string) {
	if path == "" {
		return
	}
	if err := fileutil.AppendLines(path, line); err != nil {
		logger.Warn("failed to append verify result", logging.String("file", path), logging.Error(err),
			logging.String(logging.FieldEventType, "verify_output_failed"),
			logging.String(logging.FieldErrorHint, "check write access to the result file"),
		)
	}
}
