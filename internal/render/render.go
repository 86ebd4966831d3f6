// Package render invokes an external renderer command and loads the
// document it produces.
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"storyforge/internal/canonical"
	"storyforge/internal/faults"
)

// Invoke runs command (split on whitespace) with --plan and --out arguments
// appended, then decodes the document written to outPath. A missing binary,
// non-zero exit, or unparsable output all report a stage failure.
func Invoke(ctx context.Context, command, planPath, outPath string) (map[string]any, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, faults.Wrap(faults.ErrStageFailure, "", "render",
			"renderer command is empty", nil)
	}
	args := append(parts[1:], "--plan", planPath, "--out", outPath)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = err.Error()
		}
		return nil, faults.Wrap(faults.ErrStageFailure, "", "render",
			fmt.Sprintf("renderer %q failed: %s", parts[0], detail), err)
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStageFailure, "", "render",
			fmt.Sprintf("renderer wrote no output at %s", outPath), err)
	}
	doc, err := canonical.DecodeObject(raw)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStageFailure, "", "render",
			"renderer output is not valid JSON", err)
	}
	return doc, nil
}
