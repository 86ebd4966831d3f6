package compare

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	"storyforge/internal/canonical"
)

// contractArtifacts is the fixed whitelist the normalized comparator
// certifies. CanonDecision participates verbatim.
var contractArtifacts = []string{
	"CanonDecision.json",
	"Script.json",
	"ShotList.json",
	"AssetManifest.json",
	"RenderPlan.json",
	"RenderOutput.json",
}

// optionalContract is a nested render output compared only when at least one
// side has it.
const optionalContract = "render_preview/render_output.json"

// Diff is one normalized-comparison finding.
type Diff struct {
	Artifact string `json:"artifact"`
	Type     string `json:"type"`
	Path     string `json:"path"`
	RunA     string `json:"runA"`
	RunB     string `json:"runB"`
}

// Report is the determinism verdict over a set of diffs.
type Report struct {
	Status string `json:"status"`
	Diffs  []Diff `json:"diffs"`
}

// NewReport wraps diffs in a pass/fail verdict.
func NewReport(diffs []Diff) Report {
	status := "pass"
	if len(diffs) > 0 {
		status = "fail"
	}
	if diffs == nil {
		diffs = []Diff{}
	}
	return Report{Status: status, Diffs: diffs}
}

// CompareContract runs the normalized comparison of two run directories.
// Each contract artifact is normalized, then flattened and diffed field by
// field; RenderOutput's derived hash fields are first re-derived from the
// normalized AssetManifest and RenderPlan so run-identity strings cannot
// masquerade as semantic differences. Diffs come back sorted by
// (artifact, path).
func CompareContract(dirA, dirB string) []Diff {
	diffs := []Diff{}

	candidates := append([]string{}, contractArtifacts...)
	_, errA := os.Stat(filepath.Join(dirA, filepath.FromSlash(optionalContract)))
	_, errB := os.Stat(filepath.Join(dirB, filepath.FromSlash(optionalContract)))
	if errA == nil || errB == nil {
		candidates = append(candidates, optionalContract)
	}

	hashesA := normalizedSourceHashes(dirA)
	hashesB := normalizedSourceHashes(dirB)

	for _, name := range candidates {
		pathA := filepath.Join(dirA, filepath.FromSlash(name))
		pathB := filepath.Join(dirB, filepath.FromSlash(name))
		_, missErrA := os.Stat(pathA)
		_, missErrB := os.Stat(pathB)
		if missErrA != nil || missErrB != nil {
			diffs = append(diffs, Diff{
				Artifact: name,
				Type:     "artifact_missing",
				Path:     "",
				RunA:     presence(missErrA == nil),
				RunB:     presence(missErrB == nil),
			})
			continue
		}

		docA, okA := readObject(pathA)
		docB, okB := readObject(pathB)
		if !okA || !okB {
			continue
		}
		docA = Normalize(name, docA)
		docB = Normalize(name, docB)
		if name == "RenderOutput.json" || name == optionalContract {
			docA = substituteDerivedHashes(docA, hashesA)
			docB = substituteDerivedHashes(docB, hashesB)
		}

		flatA := Flatten(docA)
		flatB := Flatten(docB)
		for _, key := range sortedKeys(flatA, flatB) {
			if flatA[key] != flatB[key] {
				diffs = append(diffs, Diff{
					Artifact: name,
					Type:     "json_field_mismatch",
					Path:     key,
					RunA:     flatA[key],
					RunB:     flatB[key],
				})
			}
		}
	}

	diffs = append(diffs, sourceMismatchDiagnostics(dirA, dirB, hashesA, hashesB)...)

	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].Artifact != diffs[j].Artifact {
			return diffs[i].Artifact < diffs[j].Artifact
		}
		return diffs[i].Path < diffs[j].Path
	})
	return diffs
}

// normalizedSourceHashes recomputes the derived hash fields a renderer would
// have produced, but over the normalized AssetManifest and RenderPlan. An
// empty map means one of the sources was unreadable and substitution must be
// skipped entirely.
func normalizedSourceHashes(runDir string) map[string]string {
	manifest, okM := readObject(filepath.Join(runDir, "AssetManifest.json"))
	plan, okP := readObject(filepath.Join(runDir, "RenderPlan.json"))
	if !okM || !okP {
		return map[string]string{}
	}

	manifestBytes, errM := canonical.Canonicalize(Normalize("AssetManifest.json", manifest))
	planBytes, errP := canonical.Canonicalize(Normalize("RenderPlan.json", plan))
	if errM != nil || errP != nil {
		return map[string]string{}
	}

	manifestSum := sha256.Sum256(manifestBytes)
	planSum := sha256.Sum256(planBytes)

	// Newline separator so adjacent byte strings cannot collide.
	joined := append(append(append([]byte{}, manifestBytes...), '\n'), planBytes...)
	digestSum := sha256.Sum256(joined)

	return map[string]string{
		"asset_manifest_hash": hex.EncodeToString(manifestSum[:]),
		"render_plan_hash":    hex.EncodeToString(planSum[:]),
		"inputs_digest":       hex.EncodeToString(digestSum[:]),
	}
}

// substituteDerivedHashes swaps RenderOutput's derived hash fields for the
// normalized recomputations. Only keys that already exist are replaced;
// nothing is added.
func substituteDerivedHashes(doc map[string]any, hashes map[string]string) map[string]any {
	if len(hashes) == 0 {
		return doc
	}
	if _, ok := doc["inputs_digest"]; ok {
		doc["inputs_digest"] = hashes["inputs_digest"]
	}
	if lineage, ok := doc["lineage"].(map[string]any); ok {
		if _, ok := lineage["asset_manifest_hash"]; ok {
			lineage["asset_manifest_hash"] = hashes["asset_manifest_hash"]
		}
		if _, ok := lineage["render_plan_hash"]; ok {
			lineage["render_plan_hash"] = hashes["render_plan_hash"]
		}
	}
	return doc
}

// sourceMismatchDiagnostics points investigators at the root cause when the
// normalized derived hashes still disagree: one entry per source artifact,
// carrying only its first mismatching normalized field.
func sourceMismatchDiagnostics(dirA, dirB string, hashesA, hashesB map[string]string) []Diff {
	if len(hashesA) == 0 || len(hashesB) == 0 {
		return nil
	}
	mismatch := false
	for _, key := range []string{"asset_manifest_hash", "render_plan_hash", "inputs_digest"} {
		if hashesA[key] != hashesB[key] {
			mismatch = true
			break
		}
	}
	if !mismatch {
		return nil
	}

	diffs := []Diff{}
	sources := []struct {
		name  string
		label string
	}{
		{"AssetManifest.json", "[AssetManifest]"},
		{"RenderPlan.json", "[RenderPlan]"},
	}
	for _, source := range sources {
		docA, okA := readObject(filepath.Join(dirA, source.name))
		docB, okB := readObject(filepath.Join(dirB, source.name))
		if !okA || !okB {
			continue
		}
		flatA := Flatten(Normalize(source.name, docA))
		flatB := Flatten(Normalize(source.name, docB))
		for _, key := range sortedKeys(flatA, flatB) {
			if flatA[key] != flatB[key] {
				diffs = append(diffs, Diff{
					Artifact: "NORMALIZED_INPUTS",
					Type:     "normalized_input_mismatch",
					Path:     source.label,
					RunA:     key + ": " + flatA[key],
					RunB:     key + ": " + flatB[key],
				})
				break
			}
		}
	}
	return diffs
}

func readObject(path string) (map[string]any, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	doc, err := canonical.DecodeObject(raw)
	if err != nil {
		return nil, false
	}
	return doc, true
}

func presence(present bool) string {
	if present {
		return "present"
	}
	return "missing"
}
