// Package artifact persists pipeline artifacts content-addressed per
// (project, run, type) slot, with sidecar provenance metadata.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"storyforge/internal/canonical"
	"storyforge/internal/faults"
	"storyforge/internal/schema"
)

// idFields maps artifact type to the document field the sidecar records as
// artifact_id. Types without an entry fall back to "id".
var idFields = map[string]string{
	"Script":        "script_id",
	"ShotList":      "shotlist_id",
	"AssetManifest": "manifest_id",
	"RenderPlan":    "plan_id",
	"RenderOutput":  "output_id",
	"RenderPackage": "request_id",
}

// Sidecar is the advisory metadata written next to every artifact. It is
// provenance, not a correctness gate: only a hash field that provably
// mismatches the artifact invalidates the slot.
type Sidecar struct {
	ArtifactType   string         `json:"artifact_type"`
	ArtifactID     string         `json:"artifact_id"`
	SchemaVersion  string         `json:"schema_version"`
	Hash           string         `json:"hash"`
	ParentRefs     []string       `json:"parent_refs"`
	CreationParams map[string]any `json:"creation_params"`
	ComputeOrigin  string         `json:"compute_origin"`
	CreatedAt      string         `json:"created_at"`
}

// SidecarOutcome classifies a sidecar lookup. Absent and NoHash both leave
// the artifact's validity to schema validation alone.
type SidecarOutcome int

const (
	// SidecarAbsent means no sidecar file exists.
	SidecarAbsent SidecarOutcome = iota
	// SidecarNoHash means the sidecar is unreadable, malformed, or lacks
	// a hash field.
	SidecarNoHash
	// SidecarHash means the sidecar carries a hash to verify against.
	SidecarHash
)

// Store lays out artifacts as <base>/<project>/<run>/<Type>.json with
// <Type>.meta.json sidecars.
type Store struct {
	base    string
	schemas *schema.Validator
}

func NewStore(base string, schemas *schema.Validator) *Store {
	return &Store{base: base, schemas: schemas}
}

// Base returns the store's root directory.
func (s *Store) Base() string { return s.base }

// RunDir returns the directory owning all artifacts of one run.
func (s *Store) RunDir(projectID, runID string) string {
	return filepath.Join(s.base, projectID, runID)
}

// PathFor returns the artifact file location. No side effects.
func (s *Store) PathFor(projectID, runID, artifactType string) string {
	return filepath.Join(s.RunDir(projectID, runID), artifactType+".json")
}

// MetaPathFor returns the sidecar file location.
func (s *Store) MetaPathFor(projectID, runID, artifactType string) string {
	return filepath.Join(s.RunDir(projectID, runID), artifactType+".meta.json")
}

// Read loads and decodes the artifact, preserving numeric lexemes. A missing
// file reports NotFound.
func (s *Store) Read(projectID, runID, artifactType string) (map[string]any, error) {
	path := s.PathFor(projectID, runID, artifactType)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "", artifactType,
				fmt.Sprintf("artifact missing at %s", path), nil)
		}
		return nil, fmt.Errorf("read artifact %s: %w", artifactType, err)
	}

	doc, err := canonical.DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", artifactType, err)
	}
	return doc, nil
}

// Write validates doc against its schema, persists it as canonical JSON, and
// writes a sidecar carrying the canonical hash plus provenance. Parent
// directories are created as needed.
func (s *Store) Write(projectID, runID, artifactType string, doc map[string]any, parentRefs []string, creationParams map[string]any) error {
	if err := s.schemas.Validate(doc, artifactType); err != nil {
		return err
	}

	body, err := canonical.Canonicalize(doc)
	if err != nil {
		return fmt.Errorf("canonicalize %s: %w", artifactType, err)
	}
	hash, err := canonical.HashArtifact(doc)
	if err != nil {
		return fmt.Errorf("hash %s: %w", artifactType, err)
	}

	path := s.PathFor(projectID, runID, artifactType)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	if err := os.WriteFile(path, append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", artifactType, err)
	}

	if parentRefs == nil {
		parentRefs = []string{}
	}
	if creationParams == nil {
		creationParams = map[string]any{}
	}
	meta := Sidecar{
		ArtifactType:   artifactType,
		ArtifactID:     stringField(doc, idField(artifactType)),
		SchemaVersion:  stringField(doc, "schema_version"),
		Hash:           hash,
		ParentRefs:     parentRefs,
		CreationParams: creationParams,
		ComputeOrigin:  "local",
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar %s: %w", artifactType, err)
	}
	if err := os.WriteFile(s.MetaPathFor(projectID, runID, artifactType), append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write sidecar %s: %w", artifactType, err)
	}
	return nil
}

// ExistsAndValid reports whether the artifact slot holds a usable artifact:
// the file exists, decodes, conforms to its schema, and no sidecar hash
// provably contradicts it. A missing, unreadable, or hash-less sidecar does
// not invalidate the artifact.
func (s *Store) ExistsAndValid(projectID, runID, artifactType string) bool {
	doc, err := s.Read(projectID, runID, artifactType)
	if err != nil {
		return false
	}
	if err := s.schemas.Validate(doc, artifactType); err != nil {
		return false
	}

	outcome, stored := s.SidecarHashState(projectID, runID, artifactType)
	if outcome != SidecarHash {
		return true
	}
	current, err := canonical.HashArtifact(doc)
	if err != nil {
		return false
	}
	return stored == current
}

// SidecarHashState classifies the sidecar for an artifact slot and, when the
// outcome is SidecarHash, returns the stored hash.
func (s *Store) SidecarHashState(projectID, runID, artifactType string) (SidecarOutcome, string) {
	raw, err := os.ReadFile(s.MetaPathFor(projectID, runID, artifactType))
	if err != nil {
		return SidecarAbsent, ""
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return SidecarNoHash, ""
	}
	hash, ok := meta["hash"].(string)
	if !ok || hash == "" {
		return SidecarNoHash, ""
	}
	return SidecarHash, hash
}

// WriteRunSummary persists the run summary without validation. It is written
// on every run, success or failure.
func (s *Store) WriteRunSummary(projectID, runID string, summary any) error {
	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	dir := s.RunDir(projectID, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	path := filepath.Join(dir, "run_summary.json")
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}

func idField(artifactType string) string {
	if field, ok := idFields[artifactType]; ok {
		return field
	}
	return "id"
}

func stringField(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}
