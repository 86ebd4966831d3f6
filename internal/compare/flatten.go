// Package compare diffs two run directories: a raw mode over run indexes and
// file bytes, and a normalized mode that strips run-identity fields to
// certify pipeline determinism.
package compare

import (
	"fmt"
	"sort"

	"storyforge/internal/canonical"
)

// Flatten reduces a document to {path: stringified leaf}. Mapping keys are
// visited in sorted order and contribute "[key]" segments; sequence elements
// contribute "[i]". Leaves are stringified in canonical JSON form, so number
// lexemes and string quoting survive unambiguously.
func Flatten(doc any) map[string]string {
	result := map[string]string{}
	flattenInto(doc, "", result)
	return result
}

func flattenInto(v any, prefix string, out map[string]string) {
	switch node := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenInto(node[k], fmt.Sprintf("%s[%s]", prefix, k), out)
		}
	case []any:
		for i, item := range node {
			flattenInto(item, fmt.Sprintf("%s[%d]", prefix, i), out)
		}
	default:
		out[prefix] = stringifyLeaf(v)
	}
}

func stringifyLeaf(v any) string {
	body, err := canonical.Canonicalize(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(body)
}

// sortedKeys returns the union of the keys of both maps, sorted.
func sortedKeys(a, b map[string]string) []string {
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
