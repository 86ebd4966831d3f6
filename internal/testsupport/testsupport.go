// Package testsupport holds shared fixtures for package tests.
package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"storyforge/internal/artifact"
	"storyforge/internal/project"
	"storyforge/internal/schema"
)

// ProjectRaw returns the project configuration document used across tests.
func ProjectRaw() map[string]any {
	return map[string]any{
		"id":    "test-project",
		"title": "Test Project",
		"genre": "test",
	}
}

// NewProject returns a loaded project config backed by a real file in a
// temporary directory.
func NewProject(t *testing.T) *project.Config {
	t.Helper()
	raw, err := json.Marshal(ProjectRaw())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "project.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := project.Load(path)
	if err != nil {
		t.Fatalf("load project fixture: %v", err)
	}
	return cfg
}

// NewStore returns an artifact store rooted in a temporary directory, using
// the embedded schema documents.
func NewStore(t *testing.T) *artifact.Store {
	t.Helper()
	return artifact.NewStore(t.TempDir(), schema.NewValidator(""))
}

// SeedDecision writes a CanonDecision.json into the run directory the way an
// external review tool would: a plain file, no sidecar.
func SeedDecision(t *testing.T, store *artifact.Store, projectID, runID, decision string, reasons ...string) {
	t.Helper()
	doc := map[string]any{
		"schema_id":      "CanonDecision",
		"schema_version": "1.0.0",
		"decision":       decision,
		"decision_id":    "test-decision-01",
	}
	if len(reasons) > 0 {
		doc["reasons"] = reasons
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	runDir := store.RunDir(projectID, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "CanonDecision.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}
}
