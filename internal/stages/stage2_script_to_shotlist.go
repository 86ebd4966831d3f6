package stages

import (
	"context"
	"fmt"
	"strings"

	"storyforge/internal/artifact"
	"storyforge/internal/canonical"
	"storyforge/internal/project"
)

// scriptToShotList derives the shot list from the script. Two shots per
// scene (wide, then medium close-up), each lasting max(3.0, dialogue word
// count * 0.4) seconds. The timing lock hash covers shot ids and durations
// only, so downstream stages can detect timing drift.
func scriptToShotList(ctx context.Context, proj *project.Config, runID string, store *artifact.Store) (map[string]any, error) {
	projectID := proj.ID()
	script, err := store.Read(projectID, runID, "Script")
	if err != nil {
		return nil, err
	}

	shots := []any{}
	for _, rawScene := range asList(script["scenes"]) {
		scene, ok := rawScene.(map[string]any)
		if !ok {
			continue
		}
		sceneID, _ := scene["scene_id"].(string)
		actions := asList(scene["actions"])

		wordCount := 0
		var firstDialogue map[string]any
		for _, rawAction := range actions {
			action, ok := rawAction.(map[string]any)
			if !ok || action["type"] != "dialogue" {
				continue
			}
			text, _ := action["text"].(string)
			wordCount += len(strings.Fields(text))
			if firstDialogue == nil {
				firstDialogue = action
			}
		}
		durationSec := max(3.0, float64(wordCount)*0.4)

		var speakerID any
		var voText any
		var characters []any
		if firstDialogue != nil {
			name, _ := firstDialogue["character"].(string)
			id := speakerIDFor(name)
			speakerID = id
			voText = firstDialogue["text"]
			characters = []any{
				map[string]any{"character_id": id, "expression": nil, "pose": nil},
			}
		} else {
			characters = []any{}
		}
		audioIntent := map[string]any{
			"vo_speaker_id": speakerID,
			"vo_text":       voText,
			"sfx_tags":      []any{},
			"music_mood":    nil,
		}

		for i, framing := range []string{"wide", "medium_close_up"} {
			shots = append(shots, map[string]any{
				"shot_id":         fmt.Sprintf("%s-shot-%03d", sceneID, i+1),
				"scene_id":        sceneID,
				"duration_sec":    durationSec,
				"camera_framing":  framing,
				"camera_movement": "STATIC",
				"audio_intent":    audioIntent,
				"characters":      characters,
			})
		}
	}

	timingEntries := make([]any, 0, len(shots))
	totalDuration := 0.0
	for _, rawShot := range shots {
		shot := rawShot.(map[string]any)
		timingEntries = append(timingEntries, map[string]any{
			"shot_id":      shot["shot_id"],
			"duration_sec": shot["duration_sec"],
		})
		totalDuration += shot["duration_sec"].(float64)
	}
	timingLockHash, err := canonical.HashArtifact(map[string]any{"shots": timingEntries})
	if err != nil {
		return nil, err
	}

	scriptID, _ := script["script_id"].(string)
	shotlist := map[string]any{
		"schema_id":          "ShotList",
		"schema_version":     "1.0.0",
		"shotlist_id":        fmt.Sprintf("shotlist-%s-%s", projectID, shortRunID(runID)),
		"script_id":          scriptID,
		"created_at":         epochTimestamp,
		"timing_lock_hash":   timingLockHash,
		"total_duration_sec": totalDuration,
		"shots":              shots,
	}

	err = store.Write(projectID, runID, "ShotList", shotlist, []string{scriptID}, map[string]any{
		"project_id": projectID,
		"run_id":     runID,
		"stage":      "stage2_script_to_shotlist",
	})
	if err != nil {
		return nil, err
	}
	return shotlist, nil
}

func speakerIDFor(character string) string {
	return strings.ReplaceAll(strings.ToLower(character), " ", "_")
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}
