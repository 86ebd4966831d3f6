package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyforge/internal/config"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	cfg, resolved, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if resolved == "" {
		t.Fatal("expected resolved path even when file is absent")
	}
	if cfg.PipelineVersion != "phase0" {
		t.Fatalf("unexpected default pipeline_version: %q", cfg.PipelineVersion)
	}
	if !filepath.IsAbs(cfg.ArtifactsDir) {
		t.Fatalf("artifacts_dir not normalized to absolute: %q", cfg.ArtifactsDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		`artifacts_dir = "` + filepath.Join(dir, "art") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		`log_format = "json"`,
		`pipeline_version = "phase1"`,
		`renderer_command = "video render"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.LogFormat != "json" || cfg.PipelineVersion != "phase1" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RendererCommand != "video render" {
		t.Fatalf("renderer_command not applied: %q", cfg.RendererCommand)
	}
	if want := filepath.Join(dir, "logs", "ledger.db"); cfg.LedgerPath != want {
		t.Fatalf("ledger_path default = %q, want %q", cfg.LedgerPath, want)
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`log_format = "xml"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported log_format")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load cleanly: exists=%v err=%v", exists, err)
	}
}
