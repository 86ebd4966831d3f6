// Package schema validates artifacts against their JSON Schema documents.
// Schema documents are external, versioned files keyed by artifact type; a
// default set ships embedded and a configured directory can override it.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"storyforge/internal/faults"
)

//go:embed schemas/*.v1.json
var embeddedSchemas embed.FS

// Documents maps artifact type to its schema document filename.
var Documents = map[string]string{
	"Script":        "Script.v1.json",
	"ShotList":      "ShotList.v1.json",
	"AssetManifest": "AssetManifest.v1.json",
	"RenderPlan":    "RenderPlan.v1.json",
	"RenderOutput":  "RenderOutput.v1.json",
	"CanonDecision": "CanonDecision.v1.json",
	"RunIndex":      "RunIndex.v1.json",
	"EpisodeBundle": "EpisodeBundle.v1.json",
}

// Validator compiles schema documents on first use and caches them.
type Validator struct {
	dir string

	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns a validator backed by the embedded schema documents,
// or by dir when non-empty.
func NewValidator(dir string) *Validator {
	return &Validator{dir: dir, compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks doc against the schema for artifactType. It returns a
// SchemaInvalid failure on non-conformance and on a malformed or missing
// schema document.
func (v *Validator) Validate(doc any, artifactType string) error {
	sch, err := v.schemaFor(artifactType)
	if err != nil {
		return err
	}

	// Round-trip through the library's decoder so struct-typed documents
	// and json.Number values validate uniformly.
	raw, err := json.Marshal(doc)
	if err != nil {
		return faults.Wrap(faults.ErrSchemaInvalid, "", artifactType, "document not serializable", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return faults.Wrap(faults.ErrSchemaInvalid, "", artifactType, "document not parseable", err)
	}

	if err := sch.Validate(instance); err != nil {
		return faults.Wrap(faults.ErrSchemaInvalid, "", artifactType, "", err)
	}
	return nil
}

func (v *Validator) schemaFor(artifactType string) (*jsonschema.Schema, error) {
	filename, ok := Documents[artifactType]
	if !ok {
		return nil, fmt.Errorf("schema: unknown artifact type %q", artifactType)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if sch, ok := v.compiled[artifactType]; ok {
		return sch, nil
	}

	raw, err := v.readDocument(filename)
	if err != nil {
		return nil, faults.Wrap(faults.ErrSchemaInvalid, "", artifactType, "load schema document", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, faults.Wrap(faults.ErrSchemaInvalid, "", artifactType, "malformed schema document", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(filename, doc); err != nil {
		return nil, faults.Wrap(faults.ErrSchemaInvalid, "", artifactType, "register schema document", err)
	}
	sch, err := compiler.Compile(filename)
	if err != nil {
		return nil, faults.Wrap(faults.ErrSchemaInvalid, "", artifactType, "compile schema document", err)
	}

	v.compiled[artifactType] = sch
	return sch, nil
}

func (v *Validator) readDocument(filename string) ([]byte, error) {
	if v.dir != "" {
		return os.ReadFile(filepath.Join(v.dir, filename))
	}
	return embeddedSchemas.ReadFile("schemas/" + filename)
}
