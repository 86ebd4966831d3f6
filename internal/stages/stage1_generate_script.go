package stages

import (
	"context"
	"fmt"

	"storyforge/internal/artifact"
	"storyforge/internal/project"
)

// generateScript emits a two-scene stub script derived from the project
// configuration. It reads nothing and writes Script.json.
func generateScript(ctx context.Context, proj *project.Config, runID string, store *artifact.Store) (map[string]any, error) {
	projectID := proj.ID()
	title := proj.Title()
	genre := "drama"
	if g, ok := proj.Raw["genre"].(string); ok && g != "" {
		genre = g
	}

	script := map[string]any{
		"schema_id":      "Script",
		"schema_version": "1.0.0",
		"script_id":      fmt.Sprintf("script-%s-%s", projectID, shortRunID(runID)),
		"project_id":     projectID,
		"title":          title,
		"genre":          genre,
		"scenes": []any{
			map[string]any{
				"scene_id":    "scene-001",
				"location":    "INT. COMMAND CENTER",
				"time_of_day": "NIGHT",
				"actions": []any{
					map[string]any{
						"type": "action",
						"text": "The room hums with the glow of monitors.",
					},
					map[string]any{
						"type":      "dialogue",
						"character": "COMMANDER",
						"text":      "We have lost contact with the probe.",
					},
					map[string]any{
						"type":      "dialogue",
						"character": "ANALYST",
						"text":      "The signal disappeared twelve minutes ago.",
					},
				},
			},
			map[string]any{
				"scene_id":    "scene-002",
				"location":    "EXT. LAUNCH PAD",
				"time_of_day": "DAWN",
				"actions": []any{
					map[string]any{
						"type": "action",
						"text": "A lone figure walks toward the rocket.",
					},
					map[string]any{
						"type":      "dialogue",
						"character": "COMMANDER",
						"text":      "Prepare for immediate launch.",
					},
				},
			},
		},
	}

	err := store.Write(projectID, runID, "Script", script, []string{}, map[string]any{
		"project_id": projectID,
		"run_id":     runID,
		"stage":      "stage1_generate_script",
	})
	if err != nil {
		return nil, err
	}
	return script, nil
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
