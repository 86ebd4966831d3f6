package pipeline

import (
	"fmt"

	"storyforge/internal/faults"
)

// runGates evaluates the continuation gate, then the schema-metadata gate.
// Both run exactly once per invocation, after every content-producing stage
// and before the final stage's skip decision.
func (r *Runner) runGates(summary *Summary) error {
	if err := r.checkContinuation(); err != nil {
		return err
	}
	return r.enforceSchemaMetadata(summary)
}

// checkContinuation reads the CanonDecision artifact. An absent decision
// aborts the run as unrecorded; an explicit non-allow decision fails the run
// but remains auditable through the run index.
func (r *Runner) checkContinuation() error {
	doc, err := r.store.Read(r.project.ID(), r.runID, "CanonDecision")
	if err != nil {
		return faults.Wrap(faults.ErrContinuationMissing, "continuation_gate", "",
			"CanonDecision.json not found in run directory", nil)
	}

	decision, _ := doc["decision"].(string)
	if decision != "allow" {
		detail := fmt.Sprintf("decision is %q", decision)
		if reasons, ok := doc["reasons"].([]any); ok && len(reasons) > 0 {
			detail = fmt.Sprintf("%s: %v", detail, reasons)
		}
		return faults.Wrap(faults.ErrContinuationRejected, "continuation_gate", "", detail, nil)
	}
	return nil
}

// enforceSchemaMetadata requires non-null schema_id and schema_version on
// every artifact produced so far, CanonDecision included. Artifacts from a
// non-conforming producer must not slip into a recorded run.
func (r *Runner) enforceSchemaMetadata(summary *Summary) error {
	projectID := r.project.ID()

	types := []string{"CanonDecision"}
	for _, result := range summary.Stages {
		types = append(types, result.ArtifactType)
	}
	for _, artifactType := range types {
		doc, err := r.store.Read(projectID, r.runID, artifactType)
		if err != nil {
			// Absent artifacts were never produced; the gate only
			// inspects what exists.
			continue
		}
		if id, ok := doc["schema_id"].(string); !ok || id == "" {
			return faults.Wrap(faults.ErrSchemaMissing, "schema_gate", "",
				fmt.Sprintf("artifact %s lacks schema_id", artifactType), nil)
		}
		if version, ok := doc["schema_version"].(string); !ok || version == "" {
			return faults.Wrap(faults.ErrSchemaMissing, "schema_gate", "",
				fmt.Sprintf("artifact %s lacks schema_version", artifactType), nil)
		}
	}
	return nil
}
