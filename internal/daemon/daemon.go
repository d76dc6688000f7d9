package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"joddb/internal/api"
	"joddb/internal/config"
	"joddb/internal/engine"
	"joddb/internal/logging"
	"joddb/internal/notifications"
	"joddb/internal/pipeline"
	"joddb/internal/telemetry"
)

// Daemon wires the store, engine, and API server together and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *pipeline.Store
	engine   *engine.Engine
	notifier notifications.Service
	metrics  *telemetry.Collector

	taskSvc    *api.TaskService
	metricsSvc *api.MetricsService
	apiServer  *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	APIAddress   string
	Health       pipeline.HealthSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *pipeline.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	notifier := notifications.NewService(cfg)
	collector := telemetry.NewCollector()
	eng, err := engine.New(engine.Dependencies{
		Store:    store,
		Config:   cfg,
		Logger:   logger,
		Notifier: notifier,
		Metrics:  collector,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	lockPath := cfg.LockFilePath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		engine:     eng,
		notifier:   notifier,
		metrics:    collector,
		taskSvc:    api.NewTaskService(store, eng),
		metricsSvc: api.NewMetricsService(store, cfg, logger),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.apiServer = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and brings up the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another joddb daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.apiServer.start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("joddb daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.cfg.DatabasePath()))
	return nil
}

// Stop shuts down the API server and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiServer.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("joddb daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// TestNotification pushes a test message through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}

// Status reports runtime information for the health endpoint and CLI.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if d.apiServer != nil {
		status.APIAddress = d.apiServer.address()
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Health = health
	}
	return status
}
