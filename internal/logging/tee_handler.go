package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler sends each record to the console and to the JSON log file. The
// two sinks filter independently: the file keeps info-level upload history
// even when the console is turned down to warnings.
type teeHandler struct {
	console slog.Handler
	file    slog.Handler
}

// fileLevel is the file sink threshold for a console threshold.
func fileLevel(console slog.Level) slog.Level {
	return min(console, slog.LevelInfo)
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	if h.console.Enabled(ctx, record.Level) {
		errs = append(errs, h.console.Handle(ctx, record.Clone()))
	}
	if h.file.Enabled(ctx, record.Level) {
		errs = append(errs, h.file.Handle(ctx, record))
	}
	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{console: h.console.WithAttrs(attrs), file: h.file.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{console: h.console.WithGroup(name), file: h.file.WithGroup(name)}
}
