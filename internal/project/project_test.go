package project_test

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"storyforge/internal/project"
)

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExposesIDAndTitle(t *testing.T) {
	path := writeProject(t, `{"id":"p1","title":"Pilot Episode"}`)
	cfg, err := project.Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.ID() != "p1" {
		t.Errorf("ID() = %q, want p1", cfg.ID())
	}
	if cfg.Title() != "Pilot Episode" {
		t.Errorf("Title() = %q, want Pilot Episode", cfg.Title())
	}
}

func TestTitleFallsBackToID(t *testing.T) {
	path := writeProject(t, `{"id":"p1"}`)
	cfg, err := project.Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Title() != "p1" {
		t.Errorf("Title() = %q, want p1", cfg.Title())
	}
}

func TestComputeRunIDIsDeterministic(t *testing.T) {
	a, err := project.ComputeRunID(map[string]any{"id": "p1", "title": "T"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := project.ComputeRunID(map[string]any{"title": "T", "id": "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("run ids differ for structurally equal configs: %s != %s", a, b)
	}
	if !regexp.MustCompile(`^run-[0-9a-f]{12}$`).MatchString(a) {
		t.Fatalf("run id %q does not match run-<12 hex>", a)
	}
}

func TestComputeRunIDChangesWithConfig(t *testing.T) {
	a, _ := project.ComputeRunID(map[string]any{"id": "p1"})
	b, _ := project.ComputeRunID(map[string]any{"id": "p2"})
	if a == b {
		t.Fatal("different configs must derive different run ids")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := project.Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("Load() = nil error for missing file")
	}
}
