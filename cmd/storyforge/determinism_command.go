package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"storyforge/internal/canonical"
	"storyforge/internal/compare"
	"storyforge/internal/pipeline"
	"storyforge/internal/project"
	"storyforge/internal/stages"
)

func newDeterminismCommand(ctx *commandContext) *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "investigate-determinism <project.json>",
		Short: "Run the pipeline twice and compare normalized outputs",
		Long: `Investigate-determinism executes two fresh runs of the same project into
separate scratch directories, then compares their artifacts with run-identity
fields normalized away. Any remaining difference is a real determinism bug.
The comparison report is printed as JSON.`,
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

			scratch, err := os.MkdirTemp("", "storyforge-determinism-")
			if err != nil {
				return err
			}
			if !keep {
				defer os.RemoveAll(scratch)
			}

			runDirs := make([]string, 0, 2)
			for _, label := range []string{"a", "b"} {
				store := ctx.newStore(cfg, filepath.Join(scratch, label))
				runner, err := pipeline.New(pipeline.Options{
					Project:         proj,
					Store:           store,
					Stages:          stages.Definitions(stages.Options{RendererCommand: cfg.RendererCommand}),
					PipelineVersion: cfg.PipelineVersion,
					Logger:          logger,
				})
				if err != nil {
					return err
				}

				runDir := store.RunDir(proj.ID(), runner.RunID())
				if err := seedAllowDecision(runDir); err != nil {
					return err
				}
				summary, err := runner.Run(cmd.Context())
				if err != nil {
					return err
				}
				if summary.Status != "completed" {
					return fmt.Errorf("probe run %s did not complete: %v", label, summary.Errors)
				}
				runDirs = append(runDirs, runDir)
			}

			report := compare.NewReport(compare.CompareContract(runDirs[0], runDirs[1]))
			if err := writeJSON(cmd, report); err != nil {
				return err
			}
			if keep {
				fmt.Fprintf(cmd.OutOrStdout(), "probe runs kept under %s\n", scratch)
			}
			if report.Status != "pass" {
				return fmt.Errorf("pipeline produced %d nondeterministic difference(s)", len(report.Diffs))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&keep, "keep", false, "Keep the scratch run directories for inspection")

	return cmd
}

// seedAllowDecision plants the continuation decision a probe run needs to
// pass its gate. Probe runs exist only to be compared, so the decision is a
// fixed allow.
func seedAllowDecision(runDir string) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	body, err := canonical.Canonicalize(map[string]any{
		"schema_id":      "CanonDecision",
		"schema_version": "0.0.1",
		"decision":       "allow",
		"decision_id":    "determinism-probe",
		"reasons":        []any{},
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "CanonDecision.json"), append(body, '\n'), 0o644)
}
