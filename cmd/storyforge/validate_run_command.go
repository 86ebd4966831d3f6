package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"storyforge/internal/canonical"
	"storyforge/internal/pipeline"
)

func newValidateRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-run <run-dir>",
		Short: "Check a recorded run for drift and inconsistencies",
		Long: `Validate-run re-hashes every file the RunIndex records, checks that each
recorded artifact carries schema metadata, and cross-checks the continuation
decision against the run's recorded outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			problems, err := validateRunDir(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, problem := range problems {
				fmt.Fprintln(out, problem)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d problem(s) in %s", len(problems), args[0])
			}
			fmt.Fprintln(out, "run directory validates cleanly")
			return nil
		},
	}
	return cmd
}

func validateRunDir(runDir string) ([]string, error) {
	index, err := pipeline.LoadRunIndex(runDir)
	if err != nil {
		return nil, fmt.Errorf("no run index in %s: %w", runDir, err)
	}

	problems := []string{}
	stagesList, _ := index["stages"].([]any)
	for _, raw := range stagesList {
		stageEntry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := stageEntry["name"].(string)
		for _, section := range []string{"inputs", "outputs"} {
			entries, _ := stageEntry[section].([]any)
			for _, entryRaw := range entries {
				entry, ok := entryRaw.(map[string]any)
				if !ok {
					continue
				}
				problems = append(problems, validateEntry(runDir, name, section, entry)...)
			}
		}
	}

	problems = append(problems, validateDecisionConsistency(runDir, index)...)
	return problems, nil
}

func validateEntry(runDir, stageName, section string, entry map[string]any) []string {
	problems := []string{}
	relPath, _ := entry["path"].(string)
	want, _ := entry["sha256"].(string)

	label := fmt.Sprintf("%s/%s/%s", stageName, section, relPath)
	got, err := canonical.HashFileBytes(filepath.Join(runDir, filepath.FromSlash(relPath)))
	if err != nil {
		return append(problems, label+": file missing or unreadable")
	}
	if got != want {
		problems = append(problems, label+": sha256 drift since the run was recorded")
	}
	if id, _ := entry["schema_id"].(string); id == "" {
		problems = append(problems, label+": no schema_id recorded")
	}
	if version, _ := entry["schema_version"].(string); version == "" {
		problems = append(problems, label+": no schema_version recorded")
	}
	return problems
}

// validateDecisionConsistency cross-checks the continuation decision file
// against the outcome the index recorded.
func validateDecisionConsistency(runDir string, index map[string]any) []string {
	raw, err := os.ReadFile(filepath.Join(runDir, "CanonDecision.json"))
	if err != nil {
		return []string{"CanonDecision.json: missing from run directory"}
	}
	doc, err := canonical.DecodeObject(raw)
	if err != nil {
		return []string{"CanonDecision.json: not a JSON object"}
	}
	decision, _ := doc["decision"].(string)
	reason, _ := index["failure_reason"].(string)

	switch {
	case decision == "allow" && reason == "continuation_rejected":
		return []string{"CanonDecision.json: decision is allow but the index records a rejected continuation"}
	case decision != "allow" && reason != "continuation_rejected":
		return []string{fmt.Sprintf("CanonDecision.json: decision is %q but the index does not record a rejected continuation", decision)}
	}
	return nil
}
