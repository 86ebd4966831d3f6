package stages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"storyforge/internal/artifact"
	"storyforge/internal/canonical"
	"storyforge/internal/project"
	"storyforge/internal/render"
)

// renderPreview returns the render stage implementation. With no external
// command configured it produces a placeholder RenderOutput whose every
// field is a pure function of the upstream artifacts and the run identity.
func renderPreview(rendererCommand string) func(context.Context, *project.Config, string, *artifact.Store) (map[string]any, error) {
	return func(ctx context.Context, proj *project.Config, runID string, store *artifact.Store) (map[string]any, error) {
		projectID := proj.ID()
		plan, err := store.Read(projectID, runID, "RenderPlan")
		if err != nil {
			return nil, err
		}
		shotlist, err := store.Read(projectID, runID, "ShotList")
		if err != nil {
			return nil, err
		}

		var output map[string]any
		if rendererCommand != "" {
			output, err = invokeRenderer(ctx, rendererCommand, proj, runID, store)
		} else {
			var manifest map[string]any
			manifest, err = store.Read(projectID, runID, "AssetManifest")
			if err != nil {
				return nil, err
			}
			output, err = placeholderOutput(proj, runID, manifest, plan, shotlist)
		}
		if err != nil {
			return nil, err
		}

		planID, _ := plan["plan_id"].(string)
		err = store.Write(projectID, runID, "RenderOutput", output, []string{planID}, map[string]any{
			"project_id": projectID,
			"run_id":     runID,
			"stage":      "stage5_render_preview",
		})
		if err != nil {
			return nil, err
		}
		return output, nil
	}
}

func placeholderOutput(proj *project.Config, runID string, manifest, plan, shotlist map[string]any) (map[string]any, error) {
	projectID := proj.ID()

	totalDuration := 0.0
	for _, rawShot := range asList(shotlist["shots"]) {
		shot, ok := rawShot.(map[string]any)
		if !ok {
			continue
		}
		totalDuration += numberToFloat(shot["duration_sec"])
	}

	videoURI := fmt.Sprintf("placeholder://video/%s-%s.mp4", projectID, runID)
	captionsURI := fmt.Sprintf("placeholder://captions/%s-%s.srt", projectID, runID)
	contentHash, err := canonical.HashArtifact(map[string]any{
		"captions_uri": captionsURI,
		"video_uri":    videoURI,
	})
	if err != nil {
		return nil, err
	}

	manifestHash, planHash, inputsDigest, err := lineageHashes(manifest, plan)
	if err != nil {
		return nil, err
	}

	planID, _ := plan["plan_id"].(string)
	return map[string]any{
		"schema_id":      "RenderOutput",
		"schema_version": "1.0.0",
		"output_id":      fmt.Sprintf("output-%s-%s", projectID, shortRunID(runID)),
		"request_id":     fmt.Sprintf("render-%s-%s", projectID, shortRunID(runID)),
		"project_id":     projectID,
		"plan_ref":       planID,
		"video_uri":      videoURI,
		"captions_uri":   captionsURI,
		"content_hash":   contentHash,
		"duration_sec":   totalDuration,
		"inputs_digest":  inputsDigest,
		"lineage": map[string]any{
			"asset_manifest_hash": manifestHash,
			"render_plan_hash":    planHash,
		},
		"outputs": []any{
			map[string]any{"kind": "video", "path": fmt.Sprintf("renders/%s-%s.mp4", projectID, runID)},
			map[string]any{"kind": "captions", "path": fmt.Sprintf("renders/%s-%s.srt", projectID, runID)},
		},
		"provenance": map[string]any{
			"renderer":    "builtin_preview",
			"rendered_at": epochTimestamp,
		},
	}, nil
}

// lineageHashes derives the digest fields tying a RenderOutput back to the
// documents it was rendered from. The inputs digest spans both canonical
// forms joined by a newline.
func lineageHashes(manifest, plan map[string]any) (manifestHash, planHash, inputsDigest string, err error) {
	manifestBytes, err := canonical.Canonicalize(manifest)
	if err != nil {
		return "", "", "", err
	}
	planBytes, err := canonical.Canonicalize(plan)
	if err != nil {
		return "", "", "", err
	}

	manifestSum := sha256.Sum256(manifestBytes)
	planSum := sha256.Sum256(planBytes)

	joined := make([]byte, 0, len(manifestBytes)+1+len(planBytes))
	joined = append(joined, manifestBytes...)
	joined = append(joined, '\n')
	joined = append(joined, planBytes...)
	digestSum := sha256.Sum256(joined)

	return hex.EncodeToString(manifestSum[:]),
		hex.EncodeToString(planSum[:]),
		hex.EncodeToString(digestSum[:]),
		nil
}

func invokeRenderer(ctx context.Context, command string, proj *project.Config, runID string, store *artifact.Store) (map[string]any, error) {
	projectID := proj.ID()
	planPath := store.PathFor(projectID, runID, "RenderPlan")
	outPath := filepath.Join(store.RunDir(projectID, runID), "RenderOutput.external.json")

	doc, err := render.Invoke(ctx, command, planPath, outPath)
	if err != nil {
		return nil, err
	}
	// The staging file is only a hand-off; the store owns the real copy.
	_ = os.Remove(outPath)
	return doc, nil
}

func numberToFloat(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
