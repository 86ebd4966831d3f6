package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"storyforge/internal/canonical"
)

func newWriteCommand(ctx *commandContext) *cobra.Command {
	var (
		promptPath string
		outPath    string
		writerCmd  string
	)

	cmd := &cobra.Command{
		Use:   "write --prompt <StoryPrompt.json> --out <Script.json>",
		Short: "Generate a script by invoking the configured writing agent",
		Long: `Write hands a StoryPrompt to an external writing agent and expects the
agent to produce a Script document at the output path. The agent command
comes from writer_command in the config file unless --writer-cmd overrides
it; it is split on whitespace and receives --prompt and --out arguments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			command := strings.TrimSpace(writerCmd)
			if command == "" {
				command = cfg.WriterCommand
			}
			if command == "" {
				return fmt.Errorf("no writing agent configured: set writer_command or pass --writer-cmd")
			}
			if _, err := os.Stat(promptPath); err != nil {
				return fmt.Errorf("prompt file: %w", err)
			}

			parts := strings.Fields(command)
			argv := append(parts[1:], "--prompt", promptPath, "--out", outPath)
			agent := exec.CommandContext(cmd.Context(), parts[0], argv...)
			if output, err := agent.CombinedOutput(); err != nil {
				return fmt.Errorf("writing agent failed: %w: %s", err, strings.TrimSpace(string(output)))
			}

			raw, err := os.ReadFile(outPath)
			if err != nil {
				return fmt.Errorf("writing agent produced no output at %s: %w", outPath, err)
			}
			if _, err := canonical.DecodeObject(raw); err != nil {
				return fmt.Errorf("writing agent output is not a JSON object: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "script written to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&promptPath, "prompt", "", "Path to StoryPrompt.json")
	cmd.Flags().StringVar(&outPath, "out", "", "Path to write Script.json")
	cmd.Flags().StringVar(&writerCmd, "writer-cmd", "", "Writing agent command, split on whitespace")
	_ = cmd.MarkFlagRequired("prompt")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
