package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"storyforge/internal/canonical"
)

// runIndexSchemaVersion tracks the run index document format, independent of
// artifact schema versions.
const runIndexSchemaVersion = "0.0.2"

// writeRunIndex builds and persists RunIndex.json: per stage, the relative
// paths and raw-byte hashes of its declared inputs and its one output. The
// document carries no timestamps and is written in canonical form, so two
// identical runs produce byte-identical indexes.
func (r *Runner) writeRunIndex(denied bool) error {
	projectID := r.project.ID()
	runDir := r.store.RunDir(projectID, r.runID)

	var inputHashes []string
	stageEntries := make([]any, 0, len(r.stages))

	for i, def := range r.stages {
		inputs := make([]any, 0, len(def.Inputs))
		for _, artifactType := range def.Inputs {
			entry, ok, err := r.indexEntry(runDir, artifactType+".json")
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			inputs = append(inputs, entry)
			inputHashes = append(inputHashes, entry["sha256"].(string))
		}

		outputs := make([]any, 0, 2)
		entry, ok, err := r.indexEntry(runDir, def.ArtifactType+".json")
		if err != nil {
			return err
		}
		if ok {
			outputs = append(outputs, entry)
		}
		if i == 0 {
			// The continuation decision is seeded externally before the
			// run; record it once, alongside the first stage's output.
			decisionEntry, ok, err := r.indexEntry(runDir, "CanonDecision.json")
			if err != nil {
				return err
			}
			if ok {
				outputs = append(outputs, decisionEntry)
			}
		}

		stageEntries = append(stageEntries, map[string]any{
			"name":    def.Name,
			"inputs":  inputs,
			"outputs": outputs,
		})
	}

	doc := map[string]any{
		"schema_id":        "RunIndex",
		"schema_version":   runIndexSchemaVersion,
		"run_id":           inputsFingerprint(inputHashes),
		"pipeline_version": r.version,
		"stages":           stageEntries,
	}
	if denied {
		doc["status"] = "failed"
		doc["failure_reason"] = "continuation_rejected"
	}

	body, err := canonical.Canonicalize(doc)
	if err != nil {
		return fmt.Errorf("canonicalize run index: %w", err)
	}
	path := filepath.Join(runDir, "RunIndex.json")
	if err := os.WriteFile(path, append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run index: %w", err)
	}
	return nil
}

// indexEntry builds one input/output entry for a file in the run directory.
// Missing files are reported as absent, not as errors: the index records
// what the run actually produced.
func (r *Runner) indexEntry(runDir, relPath string) (map[string]any, bool, error) {
	fullPath := filepath.Join(runDir, relPath)
	if _, err := os.Stat(fullPath); err != nil {
		return nil, false, nil
	}

	sha, err := canonical.HashFileBytes(fullPath)
	if err != nil {
		return nil, false, fmt.Errorf("hash %s: %w", relPath, err)
	}
	entry := map[string]any{
		"path":   relPath,
		"sha256": sha,
	}

	raw, err := os.ReadFile(fullPath)
	if err == nil {
		if doc, decodeErr := canonical.DecodeObject(raw); decodeErr == nil {
			if id, ok := doc["schema_id"].(string); ok && id != "" {
				entry["schema_id"] = id
			}
			if version, ok := doc["schema_version"].(string); ok && version != "" {
				entry["schema_version"] = version
			}
		}
	}
	return entry, true, nil
}

// inputsFingerprint derives the run index run_id: a digest over the sorted
// set of unique input file hashes. It fingerprints the inputs the run
// consumed, independent of how the run directory was named.
func inputsFingerprint(hashes []string) string {
	unique := map[string]bool{}
	for _, h := range hashes {
		unique[h] = true
	}
	sorted := make([]string, 0, len(unique))
	for h := range unique {
		sorted = append(sorted, h)
	}
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
