package stages

import (
	"context"
	"fmt"
	"sort"

	"storyforge/internal/artifact"
	"storyforge/internal/project"
)

// shotListToAssetManifest collects the assets the run needs: one character
// pack per unique speaking character, one background per unique scene in
// shot order, and one voice-over item per dialogue action.
func shotListToAssetManifest(ctx context.Context, proj *project.Config, runID string, store *artifact.Store) (map[string]any, error) {
	projectID := proj.ID()
	shotlist, err := store.Read(projectID, runID, "ShotList")
	if err != nil {
		return nil, err
	}
	script, err := store.Read(projectID, runID, "Script")
	if err != nil {
		return nil, err
	}

	sceneLocations := map[string]string{}
	for _, rawScene := range asList(script["scenes"]) {
		scene, ok := rawScene.(map[string]any)
		if !ok {
			continue
		}
		sceneID, _ := scene["scene_id"].(string)
		location := "UNKNOWN"
		if loc, ok := scene["location"].(string); ok && loc != "" {
			location = loc
		}
		sceneLocations[sceneID] = location
	}

	characterSet := map[string]bool{}
	voItems := []any{}
	for _, rawScene := range asList(script["scenes"]) {
		scene, ok := rawScene.(map[string]any)
		if !ok {
			continue
		}
		sceneID, _ := scene["scene_id"].(string)
		for _, rawAction := range asList(scene["actions"]) {
			action, ok := rawAction.(map[string]any)
			if !ok || action["type"] != "dialogue" {
				continue
			}
			character := "UNKNOWN"
			if c, ok := action["character"].(string); ok && c != "" {
				character = c
			}
			characterSet[character] = true
			speakerID := speakerIDFor(character)
			text, _ := action["text"].(string)
			voItems = append(voItems, map[string]any{
				"item_id":      fmt.Sprintf("vo-%s-%s-%03d", sceneID, speakerID, len(voItems)),
				"speaker_id":   speakerID,
				"text":         text,
				"license_type": "generated_local",
			})
		}
	}

	characters := make([]string, 0, len(characterSet))
	for c := range characterSet {
		characters = append(characters, c)
	}
	sort.Strings(characters)
	characterPacks := make([]any, 0, len(characters))
	for _, c := range characters {
		id := speakerIDFor(c)
		characterPacks = append(characterPacks, map[string]any{
			"pack_id":        "char-" + id,
			"character_id":   id,
			"display_name":   c,
			"is_placeholder": true,
		})
	}

	seenScenes := map[string]bool{}
	backgrounds := []any{}
	for _, rawShot := range asList(shotlist["shots"]) {
		shot, ok := rawShot.(map[string]any)
		if !ok {
			continue
		}
		sceneID, _ := shot["scene_id"].(string)
		if seenScenes[sceneID] {
			continue
		}
		seenScenes[sceneID] = true
		description := "UNKNOWN"
		if loc, ok := sceneLocations[sceneID]; ok {
			description = loc
		}
		backgrounds = append(backgrounds, map[string]any{
			"bg_id":          "bg-" + sceneID,
			"scene_id":       sceneID,
			"description":    description,
			"is_placeholder": true,
		})
	}

	shotlistID, _ := shotlist["shotlist_id"].(string)
	manifest := map[string]any{
		"schema_id":       "AssetManifest",
		"schema_version":  "1.0.0",
		"manifest_id":     fmt.Sprintf("manifest-%s-%s", projectID, shortRunID(runID)),
		"project_id":      projectID,
		"shotlist_ref":    shotlistID,
		"character_packs": characterPacks,
		"backgrounds":     backgrounds,
		"vo_items":        voItems,
	}

	err = store.Write(projectID, runID, "AssetManifest", manifest, []string{shotlistID}, map[string]any{
		"project_id": projectID,
		"run_id":     runID,
		"stage":      "stage3_shotlist_to_assetmanifest",
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}
