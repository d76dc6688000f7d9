package main

import (
	"fmt"
	"log/slog"

	"joddb/internal/api"
	"joddb/internal/config"
	"joddb/internal/engine"
	"joddb/internal/logging"
	"joddb/internal/notifications"
	"joddb/internal/pipeline"
)

// commandContext lazily wires the store and engine for CLI commands so that
// commands which never touch the database (config init, help) do not open it.
type commandContext struct {
	configFlag *string

	cfg    *config.Config
	logger *slog.Logger
	store  *pipeline.Store
	engine *engine.Engine
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	// CLI output is the tables; keep log noise down to warnings.
	logger, err := logging.New(logging.Options{Level: "warn", Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) ensureStore() (*pipeline.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := pipeline.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c.store = store
	return store, nil
}

func (c *commandContext) ensureEngine() (*engine.Engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Dependencies{
		Store:    store,
		Config:   cfg,
		Logger:   logger,
		Notifier: notifications.NewService(cfg),
	})
	if err != nil {
		return nil, err
	}
	c.engine = eng
	return eng, nil
}

func (c *commandContext) taskService() (*api.TaskService, error) {
	store, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	eng, err := c.ensureEngine()
	if err != nil {
		return nil, err
	}
	return api.NewTaskService(store, eng), nil
}

func (c *commandContext) metricsService() (*api.MetricsService, error) {
	store, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return api.NewMetricsService(store, cfg, logger), nil
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}
