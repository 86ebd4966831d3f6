package config

// Default returns the baseline configuration before any TOML overrides.
func Default() Config {
	return Config{
		ArtifactsDir:    "./artifacts",
		LogDir:          "~/.local/state/storyforge/logs",
		LogLevel:        "info",
		LogFormat:       "console",
		PipelineVersion: "phase0",
	}
}
