package compare

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"storyforge/internal/canonical"
	"storyforge/internal/pipeline"
)

// RawDiff compares two run directories through their run indexes: top-level
// index fields first, then every input/output entry per stage, by relative
// path. Entries present on both sides are compared by stored hash; when
// hashes disagree and both files are readable JSON, a field-level diff of
// the file contents is appended. The returned lines are sorted; an empty
// slice means the runs are identical.
func RawDiff(dirA, dirB string) ([]string, error) {
	idxA, err := pipeline.LoadRunIndex(dirA)
	if err != nil {
		return nil, err
	}
	idxB, err := pipeline.LoadRunIndex(dirB)
	if err != nil {
		return nil, err
	}

	lines := []string{}
	for _, key := range unionKeys(idxA, idxB) {
		if key == "stages" {
			continue
		}
		va := stringifyLeaf(idxA[key])
		vb := stringifyLeaf(idxB[key])
		if va != vb {
			lines = append(lines, fmt.Sprintf("RunIndex[%s]: %s != %s", key, va, vb))
		}
	}

	stagesA := stagesByName(idxA)
	stagesB := stagesByName(idxB)
	for _, stageName := range unionStageNames(stagesA, stagesB) {
		sa := stagesA[stageName]
		sb := stagesB[stageName]
		for _, section := range []string{"inputs", "outputs"} {
			entriesA := entriesByPath(sa, section)
			entriesB := entriesByPath(sb, section)
			for _, relPath := range unionEntryPaths(entriesA, entriesB) {
				prefix := fmt.Sprintf("stages[%s]/%s[%s]", stageName, section, relPath)
				ea, okA := entriesA[relPath]
				eb, okB := entriesB[relPath]
				if !okA {
					lines = append(lines, prefix+": missing in A")
					continue
				}
				if !okB {
					lines = append(lines, prefix+": missing in B")
					continue
				}
				shaA, _ := ea["sha256"].(string)
				shaB, _ := eb["sha256"].(string)
				if shaA == shaB {
					continue
				}
				lines = append(lines, fmt.Sprintf("%s/sha256: %s != %s", prefix, shaA, shaB))
				lines = append(lines, fileFieldDiffs(prefix, filepath.Join(dirA, relPath), filepath.Join(dirB, relPath))...)
			}
		}
	}

	sort.Strings(lines)
	return lines, nil
}

// fileFieldDiffs flattens both JSON files and reports per-field differences.
// Unreadable or non-JSON files yield no extra lines; the hash line already
// flagged the divergence.
func fileFieldDiffs(prefix, pathA, pathB string) []string {
	if !strings.HasSuffix(pathA, ".json") {
		return nil
	}
	rawA, errA := os.ReadFile(pathA)
	rawB, errB := os.ReadFile(pathB)
	if errA != nil || errB != nil {
		return nil
	}
	docA, errA := canonical.Decode(rawA)
	docB, errB := canonical.Decode(rawB)
	if errA != nil || errB != nil {
		return nil
	}

	flatA := Flatten(docA)
	flatB := Flatten(docB)
	lines := []string{}
	for _, key := range sortedKeys(flatA, flatB) {
		if flatA[key] != flatB[key] {
			lines = append(lines, fmt.Sprintf("%s/json%s: %s != %s", prefix, key, flatA[key], flatB[key]))
		}
	}
	return lines
}

func unionKeys(a, b map[string]any) []string {
	seen := map[string]bool{}
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stagesByName(index map[string]any) map[string]map[string]any {
	byName := map[string]map[string]any{}
	stages, _ := index["stages"].([]any)
	for _, rawStage := range stages {
		entry, ok := rawStage.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := entry["name"].(string); ok {
			byName[name] = entry
		}
	}
	return byName
}

func unionStageNames(a, b map[string]map[string]any) []string {
	seen := map[string]bool{}
	for name := range a {
		seen[name] = true
	}
	for name := range b {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func entriesByPath(stageEntry map[string]any, section string) map[string]map[string]any {
	byPath := map[string]map[string]any{}
	if stageEntry == nil {
		return byPath
	}
	entries, _ := stageEntry[section].([]any)
	for _, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			continue
		}
		if relPath, ok := entry["path"].(string); ok {
			byPath[relPath] = entry
		}
	}
	return byPath
}

func unionEntryPaths(a, b map[string]map[string]any) []string {
	seen := map[string]bool{}
	for p := range a {
		seen[p] = true
	}
	for p := range b {
		seen[p] = true
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
