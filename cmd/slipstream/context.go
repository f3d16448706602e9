package main

import (
	"log/slog"

	"slipstream/internal/config"
	"slipstream/internal/daemon"
	"slipstream/internal/jobstore"
	"slipstream/internal/logging"
	"slipstream/internal/notify"
	"slipstream/internal/objectstore"
	"slipstream/internal/pipeline"
	"slipstream/internal/recovery"
	"slipstream/internal/transcode"
	"slipstream/internal/workqueue"
)

// commandContext lazily loads configuration and wires the service graph for
// commands that need it.
type commandContext struct {
	configFlag *string

	cfg    *config.Config
	logger *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
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
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

// runtime is the fully wired service graph.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *jobstore.Store
	queue      *workqueue.Queue
	orch       *pipeline.Orchestrator
	reconciler *recovery.Reconciler
	daemon     *daemon.Daemon
}

func (c *commandContext) buildRuntime() (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	store, err := jobstore.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	storage, err := objectstore.NewMinIO(cfg.Storage, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	queue := workqueue.New(logger)
	orch := pipeline.New(cfg, store, queue,
		transcode.NewCLI(cfg.Transcode), storage, notify.NewHTTP(cfg.Notify, logger), logger)
	reconciler := recovery.New(cfg, orch, logger)

	d, err := daemon.New(cfg, store, orch, reconciler, storage, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		queue:      queue,
		orch:       orch,
		reconciler: reconciler,
		daemon:     d,
	}, nil
}

// openStore wires only the job record store for read-mostly commands.
func (c *commandContext) openStore() (*jobstore.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return jobstore.Open(cfg, logger)
}
