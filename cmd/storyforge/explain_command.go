package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/pipeline"
)

func newExplainCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <run-dir>",
		Short: "Show what a recorded run consumed and produced",
		Long: `Explain reads a run directory's RunIndex and prints each stage with the
files it read and wrote, including content hashes and schema metadata. The
index carries no timestamps, so explain output is stable across reruns.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := pipeline.LoadRunIndex(args[0])
			if err != nil {
				return fmt.Errorf("no run index in %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run_id:           %v\n", index["run_id"])
			fmt.Fprintf(out, "pipeline_version: %v\n", index["pipeline_version"])
			if status, ok := index["status"].(string); ok {
				fmt.Fprintf(out, "status:           %s", status)
				if reason, ok := index["failure_reason"].(string); ok {
					fmt.Fprintf(out, " (%s)", reason)
				}
				fmt.Fprintln(out)
			}

			rows := [][]string{}
			stagesList, _ := index["stages"].([]any)
			for _, raw := range stagesList {
				entry, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				name, _ := entry["name"].(string)
				rows = append(rows, explainRows(name, "reads", entry["inputs"])...)
				rows = append(rows, explainRows(name, "writes", entry["outputs"])...)
			}
			fmt.Fprintln(out, renderTable(
				[]string{"STAGE", "DIRECTION", "FILE", "SHA256", "SCHEMA"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	return cmd
}

func explainRows(stageName, direction string, section any) [][]string {
	entries, _ := section.([]any)
	rows := make([][]string, 0, len(entries))
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path, _ := entry["path"].(string)
		sha, _ := entry["sha256"].(string)
		schemaID, _ := entry["schema_id"].(string)
		schemaVersion, _ := entry["schema_version"].(string)
		schemaCol := schemaID
		if schemaVersion != "" {
			schemaCol = strings.TrimSpace(schemaID + " " + schemaVersion)
		}
		rows = append(rows, []string{stageName, direction, path, shortHash(sha), schemaCol})
	}
	return rows
}
