// Package logging assembles the structured slog loggers used across ferry.
//
// It owns the console and JSON handlers, level parsing, and the fan-out that
// mirrors daemon output into a JSON log file under paths.log_dir. Context
// helpers tag lines with the task and run identifiers so worker output can be
// correlated with queue rows. A no-op logger is provided for tests.
package logging
