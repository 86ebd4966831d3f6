package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyforge/internal/bundle"
	"storyforge/internal/fileutil"
)

func newPackageCommand(ctx *commandContext) *cobra.Command {
	var (
		outDir string
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "package <run-dir> <episode-id>",
		Short: "Assemble a completed run into an episode bundle",
		Long: `Package collects a run's artifacts and rendered media into a portable
bundle directory with an EpisodeBundle manifest. Every bundled file is
hashed on the destination, so the bundle can later be verified standalone
with validate-bundle.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundleRoot, err := bundle.Package(bundle.Options{
				RunDir:    args[0],
				EpisodeID: args[1],
				OutDir:    outDir,
				Mode:      mode,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundle written to %s\n", bundleRoot)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "bundles", "Directory to place the bundle under")
	cmd.Flags().StringVar(&mode, "mode", fileutil.ModeCopy, "File transfer mode: copy or hardlink")

	return cmd
}

func newValidateBundleCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-bundle <bundle-dir>",
		Short: "Verify an episode bundle's hashes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			problems, err := bundle.Validate(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, problem := range problems {
				fmt.Fprintf(out, "%s: %s\n", problem.Path, problem.Detail)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d problem(s) in bundle %s", len(problems), args[0])
			}
			fmt.Fprintln(out, "bundle validates cleanly")
			return nil
		},
	}
	return cmd
}
