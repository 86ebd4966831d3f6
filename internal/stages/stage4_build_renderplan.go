package stages

import (
	"context"
	"fmt"

	"storyforge/internal/artifact"
	"storyforge/internal/project"
)

// buildRenderPlan resolves every manifest asset to a placeholder URI and
// fixes the preview render profile. The shot list's timing lock hash is
// carried through so a renderer can refuse a plan whose timing drifted.
func buildRenderPlan(ctx context.Context, proj *project.Config, runID string, store *artifact.Store) (map[string]any, error) {
	projectID := proj.ID()
	manifest, err := store.Read(projectID, runID, "AssetManifest")
	if err != nil {
		return nil, err
	}
	shotlist, err := store.Read(projectID, runID, "ShotList")
	if err != nil {
		return nil, err
	}
	timingLockHash, _ := shotlist["timing_lock_hash"].(string)

	resolvedAssets := []any{}
	for _, rawPack := range asList(manifest["character_packs"]) {
		pack, ok := rawPack.(map[string]any)
		if !ok {
			continue
		}
		resolvedAssets = append(resolvedAssets, map[string]any{
			"asset_id":       pack["pack_id"],
			"asset_type":     "character_pack",
			"uri":            fmt.Sprintf("placeholder://character/%v", pack["character_id"]),
			"license_type":   "generated_local",
			"is_placeholder": true,
		})
	}
	for _, rawBG := range asList(manifest["backgrounds"]) {
		bg, ok := rawBG.(map[string]any)
		if !ok {
			continue
		}
		resolvedAssets = append(resolvedAssets, map[string]any{
			"asset_id":       bg["bg_id"],
			"asset_type":     "background",
			"uri":            fmt.Sprintf("placeholder://background/%v", bg["scene_id"]),
			"license_type":   "generated_local",
			"is_placeholder": true,
		})
	}
	for _, rawVO := range asList(manifest["vo_items"]) {
		vo, ok := rawVO.(map[string]any)
		if !ok {
			continue
		}
		license := "generated_local"
		if lt, ok := vo["license_type"].(string); ok && lt != "" {
			license = lt
		}
		resolvedAssets = append(resolvedAssets, map[string]any{
			"asset_id":       vo["item_id"],
			"asset_type":     "vo",
			"uri":            fmt.Sprintf("placeholder://vo/%v", vo["item_id"]),
			"license_type":   license,
			"is_placeholder": true,
		})
	}

	manifestID, _ := manifest["manifest_id"].(string)
	plan := map[string]any{
		"schema_id":        "RenderPlan",
		"schema_version":   "1.0.0",
		"plan_id":          fmt.Sprintf("plan-%s-%s", projectID, shortRunID(runID)),
		"project_id":       projectID,
		"manifest_ref":     manifestID,
		"timing_lock_hash": timingLockHash,
		"profile":          "preview_local",
		"resolution":       "1280x720",
		"aspect_ratio":     "16:9",
		"fps":              24.0,
		"resolved_assets":  resolvedAssets,
	}

	err = store.Write(projectID, runID, "RenderPlan", plan, []string{manifestID}, map[string]any{
		"project_id": projectID,
		"run_id":     runID,
		"stage":      "stage4_build_renderplan",
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}
