// Package daemon coordinates the long-running chartsmith process: it wires
// configuration, the stores, the workflow manager, and the HTTP API into a
// single lifecycle with flock-based locking to prevent multiple instances.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"chartsmith/internal/api"
	"chartsmith/internal/assets"
	"chartsmith/internal/config"
	"chartsmith/internal/deps"
	"chartsmith/internal/levels"
	"chartsmith/internal/logging"
	"chartsmith/internal/pipeline"
	"chartsmith/internal/queue"
	"chartsmith/internal/workflow"
)

// Daemon owns the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	jobs   *queue.Store
	assets *assets.Store
	levels *levels.Store
	probe  *deps.Probe

	workflow *workflow.Manager
	service  *api.Service
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	WorkerID     string
	QueueDBPath  string
	LockFilePath string
	Queue        queue.HealthSummary
	Dependencies []deps.Status
}

// New opens the stores and wires the daemon's services. Close releases
// everything New opened.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	jobs, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	assetStore, err := assets.Open(cfg.DatabasePath(), cfg.Paths.AssetDir)
	if err != nil {
		jobs.Close()
		return nil, fmt.Errorf("open asset store: %w", err)
	}
	levelStore, err := levels.Open(cfg.DatabasePath())
	if err != nil {
		jobs.Close()
		assetStore.Close()
		return nil, fmt.Errorf("open level store: %w", err)
	}

	probe := deps.NewProbe(cfg)
	orchestrator := pipeline.New(cfg, jobs, assetStore, levelStore, logger)
	manager := workflow.NewManager(cfg, jobs, orchestrator, logger)
	service := api.NewService(cfg, jobs, assetStore, probe, manager.Kick, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		jobs:     jobs,
		assets:   assetStore,
		levels:   levelStore,
		probe:    probe,
		workflow: manager,
		service:  service,
		lockPath: cfg.LockFilePath(),
		lock:     flock.New(cfg.LockFilePath()),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches the workflow and API
// server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another chartsmith daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.server.addr()))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases its stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	errs = append(errs, d.jobs.Close(), d.assets.Close(), d.levels.Close())
	return errors.Join(errs...)
}

// Service exposes the submission facade, used by the HTTP layer and tests.
func (d *Daemon) Service() *api.Service { return d.service }

// Addr returns the API server's bound address, available after Start.
func (d *Daemon) Addr() string { return d.server.addr() }

// WorkerID identifies this daemon's workflow claims in the queue.
func (d *Daemon) WorkerID() string { return d.workflow.WorkerID() }

// ListQueue returns jobs filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	return d.jobs.List(ctx, statuses...)
}

// ClearFailed removes failed jobs and reports how many were deleted.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.jobs.ClearFailed(ctx)
}

// ClearCompleted removes completed jobs and reports how many were deleted.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.jobs.ClearCompleted(ctx)
}

// Status reports current daemon and queue state.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.jobs.Health(ctx)
	if err != nil {
		d.logger.Warn("queue health query failed", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		WorkerID:     d.workflow.WorkerID(),
		QueueDBPath:  d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Queue:        health,
		Dependencies: d.probe.Statuses(),
	}
}
