package main

import (
	"log/slog"
	"strings"
	"sync"

	"storyforge/internal/artifact"
	"storyforge/internal/config"
	"storyforge/internal/ledger"
	"storyforge/internal/logging"
	"storyforge/internal/schema"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// newStore builds an artifact store rooted at the configured artifacts
// directory, or at override when the flag was given.
func (c *commandContext) newStore(cfg *config.Config, override string) *artifact.Store {
	base := cfg.ArtifactsDir
	if override = strings.TrimSpace(override); override != "" {
		base = override
	}
	return artifact.NewStore(base, schema.NewValidator(cfg.SchemasDir))
}

// openLedger opens the run ledger. Callers treat a nil store as "no
// archival"; the pipeline never fails because history could not be kept.
func (c *commandContext) openLedger(cfg *config.Config, logger *slog.Logger) *ledger.Store {
	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.Warn("run ledger unavailable", logging.Error(err))
		return nil
	}
	return store
}
