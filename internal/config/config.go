// Package config loads and validates storyforge configuration from TOML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Config encapsulates all configuration values for storyforge.
type Config struct {
	// ArtifactsDir is the root under which <project_id>/<run_id>/ run
	// directories are created.
	ArtifactsDir string `toml:"artifacts_dir"`
	// SchemasDir optionally overrides the embedded artifact schema documents.
	SchemasDir string `toml:"schemas_dir"`
	// LogDir receives the storyforge log file and, by default, the run ledger.
	LogDir string `toml:"log_dir"`
	// LedgerPath is the sqlite run-history database. Defaults to
	// <log_dir>/ledger.db.
	LedgerPath string `toml:"ledger_path"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// PipelineVersion is recorded in every RunIndex.
	PipelineVersion string `toml:"pipeline_version"`

	// RendererCommand, when set, replaces the built-in placeholder render
	// with an external renderer subprocess (split on whitespace).
	RendererCommand string `toml:"renderer_command"`
	// WriterCommand is the writing-agent invocation used by `storyforge write`.
	WriterCommand string `toml:"writer_command"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storyforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists at
// the resolved path the defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("storyforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.ArtifactsDir, err = expandPath(strings.TrimSpace(c.ArtifactsDir)); err != nil {
		return err
	}
	if c.LogDir, err = expandPath(strings.TrimSpace(c.LogDir)); err != nil {
		return err
	}
	if c.SchemasDir = strings.TrimSpace(c.SchemasDir); c.SchemasDir != "" {
		if c.SchemasDir, err = expandPath(c.SchemasDir); err != nil {
			return err
		}
	}
	if c.LedgerPath = strings.TrimSpace(c.LedgerPath); c.LedgerPath == "" {
		c.LedgerPath = filepath.Join(c.LogDir, "ledger.db")
	} else if c.LedgerPath, err = expandPath(c.LedgerPath); err != nil {
		return err
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.PipelineVersion = strings.TrimSpace(c.PipelineVersion)
	c.RendererCommand = strings.TrimSpace(c.RendererCommand)
	c.WriterCommand = strings.TrimSpace(c.WriterCommand)
	return nil
}

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	if c.ArtifactsDir == "" {
		return errors.New("config: artifacts_dir is required")
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unsupported log_format %q", c.LogFormat)
	}
	if c.PipelineVersion == "" {
		return errors.New("config: pipeline_version is required")
	}
	return nil
}

// EnsureDirectories creates the directories required for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.ArtifactsDir, c.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
