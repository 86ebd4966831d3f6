// Package project loads project configuration documents and derives the
// deterministic run identifier for a configuration.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"storyforge/internal/canonical"
)

// Config is a loaded project configuration. Raw preserves the document as
// decoded, including numeric lexemes, so run id derivation stays stable.
type Config struct {
	Path string
	Raw  map[string]any
}

// Load reads and decodes a project configuration file.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read project config: %w", err)
	}
	doc, err := canonical.DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("decode project config %s: %w", path, err)
	}
	return &Config{Path: abs, Raw: doc}, nil
}

// ID returns the project's "id" field, or "" when absent.
func (c *Config) ID() string {
	if id, ok := c.Raw["id"].(string); ok {
		return id
	}
	return ""
}

// Title returns the project's "title" field, falling back to its id.
func (c *Config) Title() string {
	if title, ok := c.Raw["title"].(string); ok && title != "" {
		return title
	}
	return c.ID()
}

// ComputeRunID derives the default run identifier from the configuration:
// "run-" plus the first 12 hex characters of the canonical document hash.
func (c *Config) ComputeRunID() (string, error) {
	return ComputeRunID(c.Raw)
}

// ComputeRunID derives a run identifier from an arbitrary configuration
// document. Structurally equal configurations always map to the same run id.
func ComputeRunID(doc map[string]any) (string, error) {
	body, err := canonical.Canonicalize(doc)
	if err != nil {
		return "", fmt.Errorf("canonicalize project config: %w", err)
	}
	sum := sha256.Sum256(body)
	return "run-" + hex.EncodeToString(sum[:])[:12], nil
}
