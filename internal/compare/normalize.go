package compare

import (
	"strings"

	"storyforge/internal/canonical"
)

// Normalize returns a deep copy of doc with run-identity fields stripped,
// per artifact file name. CanonDecision is returned untouched: a
// reproducible pipeline must reach the same gating decision, not merely the
// same shape.
func Normalize(artifactName string, doc map[string]any) map[string]any {
	copied := deepCopy(doc)

	switch artifactName {
	case "Script.json":
		delete(copied, "script_id")

	case "ShotList.json":
		delete(copied, "script_id")
		delete(copied, "shotlist_id")

	case "AssetManifest.json":
		delete(copied, "manifest_id")
		delete(copied, "shotlist_ref")

	case "RenderPlan.json":
		delete(copied, "plan_id")
		delete(copied, "manifest_ref")

	case "RenderOutput.json", optionalContract:
		delete(copied, "request_id")
		delete(copied, "output_id")
		for key := range copied {
			if strings.HasSuffix(key, "_ref") || strings.HasSuffix(key, "_uri") {
				delete(copied, key)
			}
		}
		if outputs, ok := copied["outputs"].([]any); ok {
			for _, rawItem := range outputs {
				if item, ok := rawItem.(map[string]any); ok {
					delete(item, "path")
				}
			}
		}
		if provenance, ok := copied["provenance"].(map[string]any); ok {
			delete(provenance, "rendered_at")
		}
	}
	return copied
}

// deepCopy round-trips through canonical bytes, preserving number lexemes.
func deepCopy(doc map[string]any) map[string]any {
	raw, err := canonical.Canonicalize(doc)
	if err != nil {
		return doc
	}
	copied, err := canonical.DecodeObject(raw)
	if err != nil {
		return doc
	}
	return copied
}
