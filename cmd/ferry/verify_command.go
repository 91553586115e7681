package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ferry/internal/audit"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/objectstore"
)

// errVerifyFailed signals a verification run with missing objects or errors.
var errVerifyFailed = errors.New("verification failed")

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var (
		root    string
		samples int
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a random sample of local files against the bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if root != "" {
				expanded, err := config.ExpandPath(root)
				if err != nil {
					return fmt.Errorf("resolve root: %w", err)
				}
				cfg.Audit.RootDir = expanded
			}
			if cmd.Flags().Changed("samples") {
				if samples <= 0 {
					return errors.New("--samples must be positive")
				}
				cfg.Audit.Samples = samples
			}
			if cmd.Flags().Changed("seed") {
				cfg.Audit.Seed = seed
			}
			if cfg.Audit.RootDir == "" {
				return errors.New("no root directory: set audit.root_dir or pass --root")
			}

			logger := ctx.cliLogger(cmd, "")
			provider, err := objectstore.NewProvider(cmd.Context(), objectstore.NewS3Source(&cfg, logger),
				objectstore.WithRefreshBuffer(cfg.RefreshBuffer()),
				objectstore.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			sampler := audit.NewSampler(&cfg, logger)
			verifier := &audit.Verifier{
				Clients:     provider,
				Bucket:      cfg.Storage.Bucket,
				FoundFile:   cfg.Audit.FoundFile,
				MissingFile: cfg.Audit.MissingFile,
				Logger:      logger,
			}
			summary, err := verifier.Run(cmd.Context(), sampler.Sample(cfg.Audit.Samples))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.Checked == 0 {
				logging.WarnWithContext(logger, "no files sampled", "verify_empty",
					logging.String("root", cfg.Audit.RootDir),
					logging.String(logging.FieldErrorHint, "check audit.root_dir and audit.extensions"),
				)
				fmt.Fprintf(out, "No files sampled under %s\n", cfg.Audit.RootDir)
				return nil
			}
			rows := [][]string{
				{"Checked", strconv.Itoa(summary.Checked)},
				{"Found", strconv.Itoa(summary.Found)},
				{"Missing", strconv.Itoa(summary.Missing)},
				{"Errors", strconv.Itoa(summary.Errors)},
			}
			renderTable(out, countColumns("Result"), rows)

			if len(summary.MissingExamples) > 0 {
				exampleRows := make([][]string, 0, len(summary.MissingExamples))
				for _, m := range summary.MissingExamples {
					exampleRows = append(exampleRows, []string{m.LocalPath, m.Key, oneLine(m.Reason)})
				}
				renderTable(out, missingColumns, exampleRows)
			}

			if !summary.OK() {
				fmt.Fprintln(out, colorStatus(out, false, "FAIL"))
				return errVerifyFailed
			}
			fmt.Fprintln(out, colorStatus(out, true, "OK"))
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Directory to sample (overrides audit.root_dir)")
	cmd.Flags().IntVarP(&samples, "samples", "n", 0, "Number of files to check (overrides audit.samples)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for reproducible samples")
	return cmd
}
