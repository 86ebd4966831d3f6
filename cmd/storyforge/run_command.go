package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/pipeline"
	"storyforge/internal/project"
	"storyforge/internal/stages"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		force        bool
		fromStage    int
		runID        string
		artifactsDir string
	)

	cmd := &cobra.Command{
		Use:   "run <project.json>",
		Short: "Execute the pipeline for a project",
		Long: `Execute the five-stage pipeline for a project config. Stages whose
artifacts already exist and validate are skipped unless --force is given.

Examples:
  storyforge run projects/demo.json
  storyforge run projects/demo.json --force
  storyforge run projects/demo.json --from-stage 3 --force`,
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
				Force:           force,
				FromStage:       fromStage,
				RunID:           runID,
				PipelineVersion: cfg.PipelineVersion,
				Logger:          logger,
				Recorder:        recorder,
			})
			if err != nil {
				return err
			}

			summary, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), summaryTable(summary))
			fmt.Fprintf(cmd.OutOrStdout(), "run %s %s (artifacts in %s)\n",
				summary.RunID, summary.Status, store.RunDir(proj.ID(), summary.RunID))

			if summary.Status != "completed" {
				return fmt.Errorf("run failed: %s", strings.Join(summary.Errors, "; "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-execute stages with valid artifacts")
	cmd.Flags().IntVar(&fromStage, "from-stage", 1, "First stage number to consider running")
	cmd.Flags().StringVar(&runID, "run-id", "", "Override the config-derived run identifier")
	cmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "", "Override the configured artifacts directory")

	return cmd
}

func summaryTable(summary *pipeline.Summary) string {
	rows := make([][]string, 0, len(summary.Stages))
	for _, result := range summary.Stages {
		hash := ""
		if result.ArtifactHash != nil {
			hash = shortHash(*result.ArtifactHash)
		}
		detail := ""
		if result.Error != nil {
			detail = *result.Error
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", result.StageNum),
			result.Name,
			result.Status,
			fmt.Sprintf("%.2fs", result.DurationSec),
			hash,
			detail,
		})
	}
	return renderTable(
		[]string{"#", "STAGE", "STATUS", "TIME", "ARTIFACT", "DETAIL"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
