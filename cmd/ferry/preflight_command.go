package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ferry/internal/objectstore"
	"ferry/internal/preflight"
	"ferry/internal/queue"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check queue, bucket, credentials and log directory access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.cliLogger(cmd, "warn")

			var store preflight.Pinger
			opened, openErr := queue.Open(cmd.Context(), cfg)
			if openErr == nil {
				defer opened.Close()
				store = opened
			} else {
				store = failingPinger{err: openErr}
			}

			var clients preflight.Clients
			provider, provErr := objectstore.NewProvider(cmd.Context(), objectstore.NewS3Source(cfg, logger),
				objectstore.WithLogger(logger),
			)
			if provErr == nil {
				clients = provider
			} else {
				clients = failingClients{err: provErr}
			}

			results := preflight.RunAll(cmd.Context(), cfg, store, clients)
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := colorStatus(out, r.Passed, "OK")
				if !r.Passed {
					status = colorStatus(out, false, "FAIL")
				}
				rows = append(rows, []string{r.Name, status, oneLine(r.Detail)})
			}
			renderTable(out, checkColumns, rows)

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

type failingClients struct{ err error }

func (c failingClients) Client(context.Context) (objectstore.Client, error) { return nil, c.err }
