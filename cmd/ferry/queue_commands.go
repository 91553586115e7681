package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ferry/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the upload queue",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueFailedCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue and ledger counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				renderTable(cmd.OutOrStdout(), countColumns("State"), buildQueueStatsRows(stats))
				return nil
			})
		},
	}
}

func buildQueueStatsRows(stats queue.Stats) [][]string {
	return [][]string{
		{"Pending", strconv.FormatInt(stats.Pending, 10)},
		{"Failed", strconv.FormatInt(stats.Failed, 10)},
		{"Exhausted", strconv.FormatInt(stats.Exhausted, 10)},
		{"Uploaded", strconv.FormatInt(stats.Uploaded, 10)},
	}
}

func newQueueFailedCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List failed tasks, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store queue.Store) error {
				tasks, err := store.ListFailed(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, "No failed tasks")
					return nil
				}
				renderTable(out, failedColumns, buildFailedRows(tasks))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of tasks to show")
	return cmd
}

func buildFailedRows(tasks []queue.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		retries := fmt.Sprintf("%d/%d", task.RetryCount, queue.MaxRetries)
		if task.Exhausted() {
			retries += " (exhausted)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			task.LocalPath,
			retries,
			formatTime(task.UpdatedAt),
			oneLine(task.LastError),
		})
	}
	return rows
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var imageID, acqID int64

	cmd := &cobra.Command{
		Use:   "add PATH...",
		Short: "Enqueue local files for upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store queue.Store) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					path, err := filepath.Abs(strings.TrimSpace(arg))
					if err != nil {
						return fmt.Errorf("resolve %q: %w", arg, err)
					}
					task, err := store.Enqueue(cmd.Context(), imageID, acqID, path)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued task %d: %s\n", task.ID, task.LocalPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&imageID, "image-id", 0, "Image id recorded with the task")
	cmd.Flags().Int64Var(&acqID, "acq-id", 0, "Acquisition id recorded with the task")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [ID...]",
		Short: "Reset retry counters (all exhausted tasks when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(store queue.Store) error {
				n, err := store.Retry(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case n == 0 && len(ids) > 0:
					fmt.Fprintln(out, "No matching tasks")
				case n == 0:
					fmt.Fprintln(out, "No exhausted tasks")
				default:
					fmt.Fprintf(out, "Reset %d task(s)\n", n)
				}
				return nil
			})
		},
	}
}

func parseTaskIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
