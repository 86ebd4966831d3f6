package ledger_test

import (
	"context"
	"path/filepath"
	"testing"

	"storyforge/internal/ledger"
	"storyforge/internal/pipeline"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSummary(runID, status string) *pipeline.Summary {
	hash := "abc"
	errMsg := "StageFailure: boom"
	summary := &pipeline.Summary{
		RunID:        runID,
		ProjectID:    "p1",
		ProjectPath:  "/tmp/project.json",
		InvocationID: "inv-" + runID,
		StartedAt:    "2026-08-30T10:00:00Z",
		CompletedAt:  "2026-08-30T10:00:05Z",
		Status:       status,
		Stages: []pipeline.StageResult{
			{Name: "stage1_generate_script", StageNum: 1, Status: "completed", ArtifactHash: &hash},
			{Name: "stage2_script_to_shotlist", StageNum: 2, Status: "skipped", Skipped: true},
		},
		Errors: []string{},
	}
	if status == "failed" {
		summary.Stages = append(summary.Stages, pipeline.StageResult{
			Name: "stage3_shotlist_to_assetmanifest", StageNum: 3, Status: "failed", Error: &errMsg,
		})
		summary.Errors = append(summary.Errors, errMsg)
	}
	return summary
}

func TestRecordAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.RecordRun(ctx, sampleSummary("run-aaa", "completed")); err != nil {
		t.Fatalf("RecordRun() = %v", err)
	}
	if err := store.RecordRun(ctx, sampleSummary("run-bbb", "failed")); err != nil {
		t.Fatalf("RecordRun() = %v", err)
	}

	entries, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].RunID != "run-bbb" {
		t.Errorf("first entry = %s, want run-bbb", entries[0].RunID)
	}

	failed := entries[0]
	if failed.Status != "failed" || failed.StagesFailed != 1 || failed.StagesCompleted != 1 || failed.StagesSkipped != 1 {
		t.Errorf("failed entry counters = %+v", failed)
	}
	if len(failed.Errors) != 1 || failed.Errors[0] != "StageFailure: boom" {
		t.Errorf("errors = %v", failed.Errors)
	}
}

func TestListFiltersAndLimits(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, runID := range []string{"run-1", "run-2", "run-3"} {
		if err := store.RecordRun(ctx, sampleSummary(runID, "completed")); err != nil {
			t.Fatal(err)
		}
	}
	other := sampleSummary("run-x", "completed")
	other.ProjectID = "p2"
	if err := store.RecordRun(ctx, other); err != nil {
		t.Fatal(err)
	}

	entries, err := store.List(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	for _, entry := range entries {
		if entry.ProjectID != "p1" {
			t.Errorf("entry project = %s, want p1", entry.ProjectID)
		}
	}

	all, err := store.List(ctx, "p2", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].RunID != "run-x" {
		t.Errorf("p2 entries = %+v", all)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	store.Close()
}
