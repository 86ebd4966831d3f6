// Package stage defines the contract every pipeline stage implements and the
// static metadata the runner needs about each stage.
package stage

import (
	"context"

	"storyforge/internal/artifact"
	"storyforge/internal/project"
)

// Func executes one stage: read zero or more upstream artifacts from the
// store, write exactly one artifact, and return the written document. A
// non-nil error aborts the pipeline at this stage.
type Func func(ctx context.Context, proj *project.Config, runID string, store *artifact.Store) (map[string]any, error)

// Definition pairs a stage identifier with its implementation. Stages are
// resolved statically from an ordered list, never by name lookup at runtime.
type Definition struct {
	// Num is the 1-based position in the pipeline.
	Num int
	// Name identifies the stage in summaries, logs, and the run index.
	Name string
	// ArtifactType is the single artifact type this stage writes.
	ArtifactType string
	// Inputs lists the artifact types the stage reads. This is metadata
	// for run index construction only; it never drives skip decisions.
	Inputs []string
	// Run is the stage implementation.
	Run Func
}
