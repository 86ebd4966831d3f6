package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"storyforge/internal/canonical"
	"storyforge/internal/faults"
)

// ReplayReport describes what a replay invocation found and did.
type ReplayReport struct {
	// Mismatches lists run-relative paths whose stored bytes no longer
	// match the run index hash.
	Mismatches []string
	// Summary is the result of the repair run.
	Summary *Summary
}

// Replay verifies every output recorded in the run index against the bytes
// on disk, removes artifacts whose hashes mismatch, and re-runs the pipeline
// without force so still-valid stages are skipped and only the removed
// artifacts are regenerated.
func (r *Runner) Replay(ctx context.Context) (*ReplayReport, error) {
	runDir := r.store.RunDir(r.project.ID(), r.runID)
	index, err := LoadRunIndex(runDir)
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{Mismatches: []string{}}
	for _, rawStage := range asList(index["stages"]) {
		stageEntry, ok := rawStage.(map[string]any)
		if !ok {
			continue
		}
		for _, rawEntry := range asList(stageEntry["outputs"]) {
			entry, ok := rawEntry.(map[string]any)
			if !ok {
				continue
			}
			relPath, _ := entry["path"].(string)
			wantHash, _ := entry["sha256"].(string)
			if relPath == "" || wantHash == "" {
				continue
			}

			fullPath := filepath.Join(runDir, relPath)
			if _, statErr := os.Stat(fullPath); statErr != nil {
				report.Mismatches = append(report.Mismatches, relPath)
				continue
			}
			gotHash, hashErr := canonical.HashFileBytes(fullPath)
			if hashErr != nil || gotHash == wantHash {
				continue
			}
			report.Mismatches = append(report.Mismatches, relPath)

			// The continuation decision is seeded externally; no stage
			// can regenerate it, so it is reported but never removed.
			if relPath == "CanonDecision.json" {
				continue
			}
			os.Remove(fullPath)
			os.Remove(filepath.Join(runDir, metaPathFor(relPath)))
		}
	}

	summary, err := r.Run(ctx)
	if err != nil {
		return report, err
	}
	report.Summary = summary
	return report, nil
}

// LoadRunIndex reads RunIndex.json from a run directory.
func LoadRunIndex(runDir string) (map[string]any, error) {
	path := filepath.Join(runDir, "RunIndex.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrNotFound, "", "RunIndex",
			fmt.Sprintf("no run index at %s", path), nil)
	}
	doc, err := canonical.DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("decode run index: %w", err)
	}
	return doc, nil
}

func metaPathFor(artifactRelPath string) string {
	return strings.TrimSuffix(artifactRelPath, ".json") + ".meta.json"
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}
