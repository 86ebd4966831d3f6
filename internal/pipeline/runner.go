// Package pipeline executes the ordered stage list for one run, deciding per
// stage whether to skip, run, or abort, and persisting the run summary and
// run index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"storyforge/internal/artifact"
	"storyforge/internal/canonical"
	"storyforge/internal/faults"
	"storyforge/internal/project"
	"storyforge/internal/stage"
)

// Recorder receives completed run summaries for archival. Recording is
// best-effort; a recorder failure never fails the run.
type Recorder interface {
	RecordRun(ctx context.Context, summary *Summary) error
}

// Options configures a Runner.
type Options struct {
	Project *project.Config
	Store   *artifact.Store
	Stages  []stage.Definition

	// Force re-executes stages whose artifacts are already valid.
	Force bool
	// FromStage skips all stages numbered below it. Zero means 1.
	FromStage int
	// RunID overrides the config-derived run identifier.
	RunID string

	PipelineVersion string
	Logger          *slog.Logger
	Recorder        Recorder
}

// StageResult records the outcome of one stage in one run invocation.
type StageResult struct {
	Name         string  `json:"name"`
	StageNum     int     `json:"stage_num"`
	ArtifactType string  `json:"artifact_type"`
	Status       string  `json:"status"`
	Skipped      bool    `json:"skipped"`
	DurationSec  float64 `json:"duration_sec"`
	ArtifactPath string  `json:"artifact_path"`
	ArtifactHash *string `json:"artifact_hash"`
	Error        *string `json:"error"`
}

// Summary is the always-persisted record of a run invocation.
type Summary struct {
	RunID        string        `json:"run_id"`
	ProjectID    string        `json:"project_id"`
	ProjectPath  string        `json:"project_path"`
	InvocationID string        `json:"invocation_id"`
	StartedAt    string        `json:"started_at"`
	CompletedAt  string        `json:"completed_at"`
	Status       string        `json:"status"`
	Stages       []StageResult `json:"stages"`
	Errors       []string      `json:"errors"`
}

// Runner drives one run of the pipeline.
type Runner struct {
	project   *project.Config
	store     *artifact.Store
	stages    []stage.Definition
	force     bool
	fromStage int
	runID     string
	version   string
	log       *slog.Logger
	recorder  Recorder
}

func New(opts Options) (*Runner, error) {
	if opts.Project == nil || opts.Store == nil {
		return nil, fmt.Errorf("pipeline: project and store are required")
	}
	if len(opts.Stages) == 0 {
		return nil, fmt.Errorf("pipeline: no stages configured")
	}

	runID := opts.RunID
	if runID == "" {
		derived, err := opts.Project.ComputeRunID()
		if err != nil {
			return nil, err
		}
		runID = derived
	}
	fromStage := opts.FromStage
	if fromStage < 1 {
		fromStage = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Runner{
		project:   opts.Project,
		store:     opts.Store,
		stages:    opts.Stages,
		force:     opts.Force,
		fromStage: fromStage,
		runID:     runID,
		version:   opts.PipelineVersion,
		log:       log,
		recorder:  opts.Recorder,
	}, nil
}

// RunID returns the identifier this runner executes under.
func (r *Runner) RunID() string { return r.runID }

// shouldRun reports whether a stage executes rather than being skipped.
func (r *Runner) shouldRun(num int, artifactType string) bool {
	if num < r.fromStage {
		return false
	}
	if r.force {
		return true
	}
	return !r.store.ExistsAndValid(r.project.ID(), r.runID, artifactType)
}

// Run executes the pipeline and returns the run summary. The summary is
// persisted on every path; the run index only on qualifying outcomes.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	projectID := r.project.ID()
	runDir := r.store.RunDir(projectID, r.runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	// One writer per run directory. Concurrent invocations against the
	// same run would interleave whole-file writes unpredictably.
	lock := flock.New(filepath.Join(runDir, ".run.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock run directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("run directory %s is locked by another invocation", runDir)
	}
	defer lock.Unlock()

	summary := &Summary{
		RunID:        r.runID,
		ProjectID:    projectID,
		ProjectPath:  r.project.Path,
		InvocationID: uuid.NewString(),
		StartedAt:    time.Now().UTC().Format(time.RFC3339),
		Status:       "completed",
		Stages:       []StageResult{},
		Errors:       []string{},
	}
	log := r.log.With("run_id", r.runID, "project_id", projectID)
	log.Info("pipeline starting", "force", r.force, "from_stage", r.fromStage)

	gateDenied := false
	finalNum := r.stages[len(r.stages)-1].Num

	for _, def := range r.stages {
		if def.Num == finalNum {
			// Both gates fire once, after every content-producing
			// stage and before the final stage's skip decision.
			if err := r.runGates(summary); err != nil {
				summary.Status = "failed"
				summary.Errors = append(summary.Errors, faults.Format(err))
				gateDenied = errors.Is(err, faults.ErrContinuationRejected)
				log.Error("gate check failed", "error", err)
				break
			}
		}

		if !r.shouldRun(def.Num, def.ArtifactType) {
			log.Info("stage skipped", "stage", def.Name)
			summary.Stages = append(summary.Stages, StageResult{
				Name:         def.Name,
				StageNum:     def.Num,
				ArtifactType: def.ArtifactType,
				Status:       "skipped",
				Skipped:      true,
				ArtifactPath: r.store.PathFor(projectID, r.runID, def.ArtifactType),
			})
			continue
		}

		log.Info("stage starting", "stage", def.Name)
		start := time.Now()
		doc, err := def.Run(ctx, r.project, r.runID, r.store)
		duration := time.Since(start).Seconds()

		result := StageResult{
			Name:         def.Name,
			StageNum:     def.Num,
			ArtifactType: def.ArtifactType,
			Skipped:      false,
			DurationSec:  duration,
			ArtifactPath: r.store.PathFor(projectID, r.runID, def.ArtifactType),
		}
		if err != nil {
			msg := faults.Format(err)
			result.Status = "failed"
			result.Error = &msg
			summary.Stages = append(summary.Stages, result)
			summary.Errors = append(summary.Errors, msg)
			summary.Status = "failed"
			log.Error("stage failed", "stage", def.Name, "error", err)
			break
		}

		hash, err := canonical.HashArtifact(doc)
		if err != nil {
			msg := faults.Format(err)
			result.Status = "failed"
			result.Error = &msg
			summary.Stages = append(summary.Stages, result)
			summary.Errors = append(summary.Errors, msg)
			summary.Status = "failed"
			break
		}
		result.Status = "completed"
		result.ArtifactHash = &hash
		summary.Stages = append(summary.Stages, result)
		log.Info("stage completed", "stage", def.Name, "duration_sec", duration, "hash", hash)
	}

	summary.CompletedAt = time.Now().UTC().Format(time.RFC3339)

	if summaryErr := r.store.WriteRunSummary(projectID, r.runID, summary); summaryErr != nil {
		log.Error("failed to persist run summary", "error", summaryErr)
	}

	if summary.Status == "completed" {
		if err := r.writeRunIndex(false); err != nil {
			log.Error("failed to write run index", "error", err)
			return summary, err
		}
	} else if gateDenied {
		// A rejected-but-complete run is a recorded, auditable outcome.
		if err := r.writeRunIndex(true); err != nil {
			log.Error("failed to write run index", "error", err)
		}
	}

	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, summary); err != nil {
			log.Warn("run ledger record failed", "error", err)
		}
	}

	log.Info("pipeline finished", "status", summary.Status)
	return summary, nil
}
