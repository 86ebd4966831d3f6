package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/pipeline"
	"storyforge/internal/project"
	"storyforge/internal/stages"
)

func newReplayCommand(ctx *commandContext) *cobra.Command {
	var (
		runID        string
		artifactsDir string
	)

	cmd := &cobra.Command{
		Use:   "replay <project.json>",
		Short: "Verify recorded artifacts and regenerate any that drifted",
		Long: `Replay checks every artifact recorded in a run's RunIndex against its
stored hash, removes artifacts whose bytes no longer match, and re-runs the
pipeline so only the damaged stages execute again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}

			proj, err := project.Load(args[0])
			if err != nil {
				return fmt.Errorf("load project: %w", err)
			}
			store := ctx.newStore(cfg, artifactsDir)

			var recorder pipeline.Recorder
			if ledgerStore := ctx.openLedger(cfg, logger); ledgerStore != nil {
				defer ledgerStore.Close()
				recorder = ledgerStore
			}

			runner, err := pipeline.New(pipeline.Options{
				Project:         proj,
				Store:           store,
				Stages:          stages.Definitions(stages.Options{RendererCommand: cfg.RendererCommand}),
				RunID:           runID,
				PipelineVersion: cfg.PipelineVersion,
				Logger:          logger,
				Recorder:        recorder,
			})
			if err != nil {
				return err
			}

			report, err := runner.Replay(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(report.Mismatches) == 0 {
				fmt.Fprintln(out, "all recorded artifacts verified; nothing regenerated")
			} else {
				fmt.Fprintf(out, "regenerated after hash drift: %s\n", strings.Join(report.Mismatches, ", "))
			}
			fmt.Fprintln(out, summaryTable(report.Summary))

			if report.Summary.Status != "completed" {
				return fmt.Errorf("replay failed: %s", strings.Join(report.Summary.Errors, "; "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Override the config-derived run identifier")
	cmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "", "Override the configured artifacts directory")

	return cmd
}
