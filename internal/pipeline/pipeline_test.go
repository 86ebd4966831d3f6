package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyforge/internal/artifact"
	"storyforge/internal/canonical"
	"storyforge/internal/pipeline"
	"storyforge/internal/project"
	"storyforge/internal/stage"
	"storyforge/internal/stages"
	"storyforge/internal/testsupport"
)

func newRunner(t *testing.T, store *artifact.Store, proj *project.Config, force bool, fromStage int) *pipeline.Runner {
	t.Helper()
	runner, err := pipeline.New(pipeline.Options{
		Project:         proj,
		Store:           store,
		Stages:          stages.Definitions(stages.Options{}),
		Force:           force,
		FromStage:       fromStage,
		PipelineVersion: "phase0",
	})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return runner
}

func completedRun(t *testing.T, store *artifact.Store, proj *project.Config) (*pipeline.Summary, string) {
	t.Helper()
	runner := newRunner(t, store, proj, false, 1)
	testsupport.SeedDecision(t, store, proj.ID(), runner.RunID(), "allow")
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if summary.Status != "completed" {
		t.Fatalf("status = %q, errors = %v", summary.Status, summary.Errors)
	}
	return summary, store.RunDir(proj.ID(), runner.RunID())
}

func stageStatuses(summary *pipeline.Summary) []string {
	statuses := make([]string, 0, len(summary.Stages))
	for _, s := range summary.Stages {
		statuses = append(statuses, s.Status)
	}
	return statuses
}

func TestFullRunCompletes(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	summary, runDir := completedRun(t, store, proj)

	if len(summary.Stages) != 5 {
		t.Fatalf("len(stages) = %d, want 5", len(summary.Stages))
	}
	for _, result := range summary.Stages {
		if result.Status != "completed" {
			t.Errorf("stage %s status = %q", result.Name, result.Status)
		}
		if result.ArtifactHash == nil {
			t.Errorf("stage %s has nil artifact hash", result.Name)
		}
	}

	for _, file := range []string{"run_summary.json", "RunIndex.json"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Errorf("%s missing after completed run", file)
		}
	}
}

func TestSecondRunSkipsEverything(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	completedRun(t, store, proj)

	runner := newRunner(t, store, proj, false, 1)
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	for _, result := range summary.Stages {
		if !result.Skipped {
			t.Errorf("stage %s re-ran on resume, want skip", result.Name)
		}
	}
	if summary.Status != "completed" {
		t.Errorf("status = %q", summary.Status)
	}
}

func TestForceRerunsWithIdenticalHashes(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	first, _ := completedRun(t, store, proj)

	runner := newRunner(t, store, proj, true, 1)
	second, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	for i, result := range second.Stages {
		if result.Skipped {
			t.Errorf("stage %s skipped under force", result.Name)
			continue
		}
		if first.Stages[i].ArtifactHash == nil || result.ArtifactHash == nil {
			t.Errorf("stage %s missing hash", result.Name)
			continue
		}
		if *first.Stages[i].ArtifactHash != *result.ArtifactHash {
			t.Errorf("stage %s hash changed under force: %s != %s",
				result.Name, *first.Stages[i].ArtifactHash, *result.ArtifactHash)
		}
	}
}

func TestFromStageSkipsEarlierStages(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	completedRun(t, store, proj)

	runner, err := pipeline.New(pipeline.Options{
		Project:         proj,
		Store:           store,
		Stages:          stages.Definitions(stages.Options{}),
		Force:           true,
		FromStage:       3,
		PipelineVersion: "phase0",
	})
	if err != nil {
		t.Fatal(err)
	}
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	want := []string{"skipped", "skipped", "completed", "completed", "completed"}
	got := stageStatuses(summary)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d status = %q, want %q", i+1, got[i], want[i])
		}
	}
}

func TestMissingDecisionAbortsWithoutRunIndex(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	runner := newRunner(t, store, proj, false, 1)

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if summary.Status != "failed" {
		t.Fatalf("status = %q, want failed", summary.Status)
	}
	if len(summary.Errors) == 0 || !strings.HasPrefix(summary.Errors[0], "ContinuationMissing:") {
		t.Fatalf("errors = %v, want ContinuationMissing", summary.Errors)
	}
	// Stages 1-4 ran; stage 5 never executed and is absent.
	if len(summary.Stages) != 4 {
		t.Errorf("len(stages) = %d, want 4", len(summary.Stages))
	}

	runDir := store.RunDir(proj.ID(), runner.RunID())
	if _, err := os.Stat(filepath.Join(runDir, "RunIndex.json")); !os.IsNotExist(err) {
		t.Error("RunIndex.json must not exist for an ungated run")
	}
	if _, err := os.Stat(filepath.Join(runDir, "run_summary.json")); err != nil {
		t.Error("run_summary.json must exist even on failure")
	}
}

func TestDeniedDecisionWritesAnnotatedRunIndex(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	runner := newRunner(t, store, proj, false, 1)
	testsupport.SeedDecision(t, store, proj.ID(), runner.RunID(), "deny", "FORBIDDEN_TOKEN")

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if summary.Status != "failed" {
		t.Fatalf("status = %q, want failed", summary.Status)
	}
	if !strings.HasPrefix(summary.Errors[0], "ContinuationRejected:") {
		t.Fatalf("errors = %v, want ContinuationRejected", summary.Errors)
	}

	runDir := store.RunDir(proj.ID(), runner.RunID())
	index, err := pipeline.LoadRunIndex(runDir)
	if err != nil {
		t.Fatalf("LoadRunIndex() = %v: denied runs must still be indexed", err)
	}
	if index["status"] != "failed" {
		t.Errorf("index status = %v, want failed", index["status"])
	}
	if index["failure_reason"] != "continuation_rejected" {
		t.Errorf("failure_reason = %v", index["failure_reason"])
	}
}

func TestSchemaMetadataGateAborts(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)

	// A stage that bypasses the store and drops a schema-less file, the
	// way a non-conforming external producer would.
	rogue := func(ctx context.Context, p *project.Config, runID string, s *artifact.Store) (map[string]any, error) {
		doc := map[string]any{"script_id": "rogue", "title": "No Metadata"}
		raw, _ := json.Marshal(doc)
		path := s.PathFor(p.ID(), runID, "Script")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return nil, err
		}
		return doc, nil
	}
	defs := []stage.Definition{
		{Num: 1, Name: "stage1_generate_script", ArtifactType: "Script", Inputs: []string{}, Run: rogue},
		{Num: 2, Name: "stage5_render_preview", ArtifactType: "RenderOutput", Inputs: []string{"Script"},
			Run: func(ctx context.Context, p *project.Config, runID string, s *artifact.Store) (map[string]any, error) {
				t.Fatal("final stage must not run after a gate failure")
				return nil, nil
			}},
	}

	runner, err := pipeline.New(pipeline.Options{
		Project:         proj,
		Store:           store,
		Stages:          defs,
		PipelineVersion: "phase0",
	})
	if err != nil {
		t.Fatal(err)
	}
	testsupport.SeedDecision(t, store, proj.ID(), runner.RunID(), "allow")

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if summary.Status != "failed" {
		t.Fatalf("status = %q, want failed", summary.Status)
	}
	if !strings.HasPrefix(summary.Errors[0], "SchemaMissing:") {
		t.Fatalf("errors = %v, want SchemaMissing", summary.Errors)
	}
	runDir := store.RunDir(proj.ID(), runner.RunID())
	if _, statErr := os.Stat(filepath.Join(runDir, "RunIndex.json")); !os.IsNotExist(statErr) {
		t.Error("RunIndex.json must not exist after a schema gate failure")
	}
}

func TestStageFailureStopsPipeline(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)

	real := stages.Definitions(stages.Options{})
	defs := make([]stage.Definition, len(real))
	copy(defs, real)
	defs[2].Run = func(ctx context.Context, p *project.Config, runID string, s *artifact.Store) (map[string]any, error) {
		return nil, os.ErrPermission
	}

	runner, err := pipeline.New(pipeline.Options{
		Project:         proj,
		Store:           store,
		Stages:          defs,
		PipelineVersion: "phase0",
	})
	if err != nil {
		t.Fatal(err)
	}
	testsupport.SeedDecision(t, store, proj.ID(), runner.RunID(), "allow")

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if summary.Status != "failed" {
		t.Fatalf("status = %q", summary.Status)
	}
	// Stages 1, 2 completed, 3 failed, 4 and 5 never recorded.
	if len(summary.Stages) != 3 {
		t.Fatalf("len(stages) = %d, want 3", len(summary.Stages))
	}
	failed := summary.Stages[2]
	if failed.Status != "failed" || failed.Error == nil {
		t.Fatalf("third stage result = %+v", failed)
	}
	if !strings.HasPrefix(*failed.Error, "StageFailure:") {
		t.Errorf("error = %q, want StageFailure prefix", *failed.Error)
	}
}

func TestRunIndexShape(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	_, runDir := completedRun(t, store, proj)

	index, err := pipeline.LoadRunIndex(runDir)
	if err != nil {
		t.Fatalf("LoadRunIndex() = %v", err)
	}
	if index["schema_id"] != "RunIndex" || index["schema_version"] != "0.0.2" {
		t.Errorf("schema fields = %v / %v", index["schema_id"], index["schema_version"])
	}
	if index["pipeline_version"] != "phase0" {
		t.Errorf("pipeline_version = %v", index["pipeline_version"])
	}
	runID, _ := index["run_id"].(string)
	if len(runID) != 64 {
		t.Errorf("run_id = %q, want 64 hex chars", runID)
	}

	stageList := index["stages"].([]any)
	if len(stageList) != 5 {
		t.Fatalf("len(stages) = %d, want 5", len(stageList))
	}

	first := stageList[0].(map[string]any)
	if len(first["inputs"].([]any)) != 0 {
		t.Error("stage 1 must declare no inputs")
	}
	// CanonDecision is recorded once, alongside the first stage's output.
	firstOutputs := first["outputs"].([]any)
	if len(firstOutputs) != 2 {
		t.Fatalf("stage 1 outputs = %d entries, want Script + CanonDecision", len(firstOutputs))
	}

	for _, rawStage := range stageList {
		stageEntry := rawStage.(map[string]any)
		entries := append(stageEntry["inputs"].([]any), stageEntry["outputs"].([]any)...)
		for _, rawEntry := range entries {
			entry := rawEntry.(map[string]any)
			relPath := entry["path"].(string)
			if filepath.IsAbs(relPath) {
				t.Errorf("path %q is absolute", relPath)
			}
			want, err := canonical.HashFileBytes(filepath.Join(runDir, relPath))
			if err != nil {
				t.Fatalf("hash %s: %v", relPath, err)
			}
			if entry["sha256"] != want {
				t.Errorf("sha256 mismatch for %s", relPath)
			}
			if id, ok := entry["schema_id"].(string); !ok || id == "" {
				t.Errorf("entry %s lacks schema_id", relPath)
			}
		}
	}
}

func TestRunIndexIsByteDeterministic(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	_, runDir := completedRun(t, store, proj)

	first, err := os.ReadFile(filepath.Join(runDir, "RunIndex.json"))
	if err != nil {
		t.Fatal(err)
	}

	runner := newRunner(t, store, proj, true, 1)
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	second, err := os.ReadFile(filepath.Join(runDir, "RunIndex.json"))
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Error("RunIndex.json bytes changed across identical forced re-runs")
	}
}

func TestReplayRegeneratesCorruptedArtifact(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	_, runDir := completedRun(t, store, proj)

	// Append whitespace: still valid JSON, but the stored bytes no longer
	// match the indexed hash.
	shotlistPath := filepath.Join(runDir, "ShotList.json")
	f, err := os.OpenFile(shotlistPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(" ")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	scriptPath := filepath.Join(runDir, "Script.json")
	scriptBefore, err := os.ReadFile(scriptPath)
	if err != nil {
		t.Fatal(err)
	}

	runner := newRunner(t, store, proj, false, 1)
	report, err := runner.Replay(context.Background())
	if err != nil {
		t.Fatalf("Replay() = %v", err)
	}

	if len(report.Mismatches) != 1 || report.Mismatches[0] != "ShotList.json" {
		t.Fatalf("mismatches = %v, want [ShotList.json]", report.Mismatches)
	}
	if report.Summary.Status != "completed" {
		t.Fatalf("repair run status = %q, errors = %v", report.Summary.Status, report.Summary.Errors)
	}

	// The corrupted artifact and its sidecar were regenerated.
	if _, err := os.Stat(shotlistPath); err != nil {
		t.Error("ShotList.json not regenerated")
	}
	if _, err := os.Stat(filepath.Join(runDir, "ShotList.meta.json")); err != nil {
		t.Error("ShotList.meta.json not regenerated")
	}

	// Valid artifacts were left untouched.
	scriptAfter, err := os.ReadFile(scriptPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(scriptBefore) != string(scriptAfter) {
		t.Error("Script.json rewritten although its hash was still valid")
	}
}

func TestReplayWithoutRunIndexFails(t *testing.T) {
	store := testsupport.NewStore(t)
	proj := testsupport.NewProject(t)
	runner := newRunner(t, store, proj, false, 1)

	if _, err := runner.Replay(context.Background()); err == nil {
		t.Fatal("Replay() = nil error without a run index")
	}
}
