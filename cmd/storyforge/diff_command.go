package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyforge/internal/compare"
)

func newDiffCommand(ctx *commandContext) *cobra.Command {
	var (
		runDir     string
		againstDir string
	)

	cmd := &cobra.Command{
		Use:   "diff --run <dir> --against <dir>",
		Short: "Compare two run directories file by file",
		Long: `Diff walks both RunIndexes and reports every divergence: top-level index
fields, missing files, raw hash mismatches, and field-level JSON differences
inside artifacts whose hashes disagree. Identical runs print nothing and
exit zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			diffs, err := compare.RawDiff(runDir, againstDir)
			if err != nil {
				return err
			}
			for _, line := range diffs {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if len(diffs) > 0 {
				return fmt.Errorf("%d difference(s) between %s and %s", len(diffs), runDir, againstDir)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "runs are byte-identical")
			return nil
		},
	}

	cmd.Flags().StringVar(&runDir, "run", "", "First run directory")
	cmd.Flags().StringVar(&againstDir, "against", "", "Second run directory")
	_ = cmd.MarkFlagRequired("run")
	_ = cmd.MarkFlagRequired("against")

	return cmd
}
