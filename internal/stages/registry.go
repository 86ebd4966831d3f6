// Package stages holds the built-in pipeline stage implementations. Every
// stage is pure: the same project configuration and run id always produce
// byte-identical artifacts, so forced re-runs can be verified by hash.
package stages

import (
	"storyforge/internal/stage"
)

// epochTimestamp is the fixed creation time stamped into generated artifacts.
// Real clock values would break re-run hash equality.
const epochTimestamp = "1970-01-01T00:00:00Z"

// Options selects between built-in stage behavior and external tools.
type Options struct {
	// RendererCommand, when non-empty, is a shell command invoked for the
	// render stage instead of the built-in placeholder renderer. It is
	// split on whitespace and receives --plan and --out arguments.
	RendererCommand string
}

// Definitions returns the ordered stage list. The order is the pipeline.
func Definitions(opts Options) []stage.Definition {
	return []stage.Definition{
		{
			Num:          1,
			Name:         "stage1_generate_script",
			ArtifactType: "Script",
			Inputs:       []string{},
			Run:          generateScript,
		},
		{
			Num:          2,
			Name:         "stage2_script_to_shotlist",
			ArtifactType: "ShotList",
			Inputs:       []string{"Script"},
			Run:          scriptToShotList,
		},
		{
			Num:          3,
			Name:         "stage3_shotlist_to_assetmanifest",
			ArtifactType: "AssetManifest",
			Inputs:       []string{"ShotList", "Script"},
			Run:          shotListToAssetManifest,
		},
		{
			Num:          4,
			Name:         "stage4_build_renderplan",
			ArtifactType: "RenderPlan",
			Inputs:       []string{"AssetManifest", "ShotList"},
			Run:          buildRenderPlan,
		},
		{
			Num:          5,
			Name:         "stage5_render_preview",
			ArtifactType: "RenderOutput",
			Inputs:       []string{"RenderPlan", "ShotList"},
			Run:          renderPreview(opts.RendererCommand),
		},
	}
}
