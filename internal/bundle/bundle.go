// Package bundle assembles a completed run directory into a portable
// episode bundle and validates existing bundles.
package bundle

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"storyforge/internal/canonical"
	"storyforge/internal/fileutil"
)

// requiredArtifacts are the run files every bundle must carry, keyed by the
// name used in the bundle's artifacts table.
var requiredArtifacts = []string{
	"Script",
	"ShotList",
	"CanonDecision",
	"AssetManifest",
	"RenderPlan",
	"RenderOutput",
	"RunIndex",
}

// optionalArtifacts are bundled when present in the run directory.
var optionalArtifacts = map[string]string{
	"RenderFingerprint": "render_fingerprint.json",
}

const bundleSchemaVersion = "0.0.1"

// Options configures bundle assembly.
type Options struct {
	RunDir    string
	EpisodeID string
	OutDir    string
	// Mode is a fileutil transfer mode; empty means copy.
	Mode string
	// Now overrides the bundle creation timestamp, for reproducible output.
	Now string
}

// Package assembles the bundle and returns its root directory. Artifact
// hashes are computed on the destination copies, so a bundle validates
// against what it actually contains.
func Package(opts Options) (string, error) {
	runDir, err := filepath.Abs(opts.RunDir)
	if err != nil {
		return "", err
	}

	for _, key := range requiredArtifacts {
		if _, err := os.Stat(filepath.Join(runDir, key+".json")); err != nil {
			return "", fmt.Errorf("missing required artifact: %s", key)
		}
	}

	renderOutput, err := readObject(filepath.Join(runDir, "RenderOutput.json"))
	if err != nil {
		return "", fmt.Errorf("read RenderOutput: %w", err)
	}
	videoURI, _ := renderOutput["video_uri"].(string)
	captionsURI, _ := renderOutput["captions_uri"].(string)

	videoSrc, err := resolveURI(videoURI, runDir)
	if err != nil {
		return "", err
	}
	captionsSrc, err := resolveURI(captionsURI, runDir)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(videoSrc); err != nil {
		return "", fmt.Errorf("video file not found: %s", videoSrc)
	}
	if _, err := os.Stat(captionsSrc); err != nil {
		return "", fmt.Errorf("captions file not found: %s", captionsSrc)
	}

	bundleRoot := filepath.Join(opts.OutDir, opts.EpisodeID)
	entries := map[string]any{}

	transfer := func(key, src, destRel string) error {
		dst := filepath.Join(bundleRoot, filepath.FromSlash(destRel))
		if err := fileutil.Transfer(src, dst, opts.Mode); err != nil {
			return fmt.Errorf("transfer %s: %w", key, err)
		}
		sha, err := canonical.HashFileBytes(dst)
		if err != nil {
			return err
		}
		entries[key] = map[string]any{"path": destRel, "sha256": sha}
		return nil
	}

	for _, key := range requiredArtifacts {
		if err := transfer(key, filepath.Join(runDir, key+".json"), "artifacts/"+key+".json"); err != nil {
			return "", err
		}
	}
	for key, filename := range optionalArtifacts {
		src := filepath.Join(runDir, filename)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := transfer(key, src, "artifacts/"+filename); err != nil {
			return "", err
		}
	}
	if err := transfer("VideoMP4", videoSrc, "media/video.mp4"); err != nil {
		return "", err
	}
	if err := transfer("CaptionsSRT", captionsSrc, "media/captions.srt"); err != nil {
		return "", err
	}

	runIndex, err := readObject(filepath.Join(runDir, "RunIndex.json"))
	if err != nil {
		return "", fmt.Errorf("read RunIndex: %w", err)
	}
	runID, _ := runIndex["run_id"].(string)

	createdUTC := opts.Now
	if createdUTC == "" {
		createdUTC = time.Now().UTC().Format(time.RFC3339)
	}

	parts := strings.Split(filepath.ToSlash(runDir), "/")
	sourceRunDir := strings.Join(parts[max(0, len(parts)-2):], "/")

	doc := map[string]any{
		"schema_id":      "EpisodeBundle",
		"schema_version": bundleSchemaVersion,
		"producer":       map[string]any{"repo": "storyforge", "component": "Packager"},
		"episode_id":     opts.EpisodeID,
		"source_run_dir": sourceRunDir,
		"run_id":         runID,
		"created_utc":    createdUTC,
		"artifacts":      entries,
	}
	hash, err := bundleHash(doc)
	if err != nil {
		return "", err
	}
	doc["bundle_hash"] = hash

	body, err := canonical.Canonicalize(doc)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(bundleRoot, "EpisodeBundle.json"), append(body, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write bundle manifest: %w", err)
	}
	return bundleRoot, nil
}

// bundleHash fingerprints the bundle document minus its own hash and its
// creation timestamp, so repackaging identical content verifies equal.
func bundleHash(doc map[string]any) (string, error) {
	trimmed := map[string]any{}
	for key, value := range doc {
		if key == "bundle_hash" || key == "created_utc" {
			continue
		}
		trimmed[key] = value
	}
	return canonical.HashArtifact(trimmed)
}

// Problem is one validation finding.
type Problem struct {
	Path   string
	Detail string
}

// Validate checks every artifact hash in a bundle plus the bundle's own
// hash. An empty slice means the bundle is intact.
func Validate(bundleRoot string) ([]Problem, error) {
	manifestPath := filepath.Join(bundleRoot, "EpisodeBundle.json")
	doc, err := readObject(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read bundle manifest: %w", err)
	}

	problems := []Problem{}
	artifacts, _ := doc["artifacts"].(map[string]any)
	keys := make([]string, 0, len(artifacts))
	for key := range artifacts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		entry, ok := artifacts[key].(map[string]any)
		if !ok {
			problems = append(problems, Problem{Path: key, Detail: "malformed artifact entry"})
			continue
		}
		relPath, _ := entry["path"].(string)
		want, _ := entry["sha256"].(string)
		fullPath := filepath.Join(bundleRoot, filepath.FromSlash(relPath))
		got, hashErr := canonical.HashFileBytes(fullPath)
		if hashErr != nil {
			problems = append(problems, Problem{Path: relPath, Detail: "file missing or unreadable"})
			continue
		}
		if got != want {
			problems = append(problems, Problem{Path: relPath, Detail: "sha256 mismatch"})
		}
	}

	wantHash, _ := doc["bundle_hash"].(string)
	gotHash, err := bundleHash(doc)
	if err != nil {
		return nil, err
	}
	if gotHash != wantHash {
		problems = append(problems, Problem{Path: "EpisodeBundle.json", Detail: "bundle_hash mismatch"})
	}
	return problems, nil
}

// resolveURI maps a file:// URI or bare path to an absolute filesystem
// path. Other schemes, placeholder:// included, cannot be packaged.
func resolveURI(uri, runDir string) (string, error) {
	parsed, err := url.Parse(uri)
	if err == nil && parsed.Scheme == "file" {
		return parsed.Path, nil
	}
	if err == nil && parsed.Scheme != "" && !isWindowsDrive(parsed.Scheme) {
		return "", fmt.Errorf("unsupported URI scheme %q: only file:// URIs and bare paths are supported", parsed.Scheme)
	}
	if filepath.IsAbs(uri) {
		return uri, nil
	}
	return filepath.Join(runDir, uri), nil
}

// isWindowsDrive treats single-letter schemes as drive prefixes, not URIs.
func isWindowsDrive(scheme string) bool {
	return len(scheme) == 1
}

func readObject(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return canonical.DecodeObject(raw)
}
