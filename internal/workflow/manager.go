// Package workflow drives queue processing: a fixed-interval poll loop
// with an edge-triggered kick, claiming jobs atomically and handing them
// to the pipeline.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chartsmith/internal/config"
	"chartsmith/internal/logging"
	"chartsmith/internal/queue"
)

// Processor runs the pipeline for one claimed job.
type Processor interface {
	Process(ctx context.Context, job *queue.Job) error
}

// Manager owns the single poll loop per process.
type Manager struct {
	cfg       *config.Config
	jobs      *queue.Store
	processor Processor
	logger    *slog.Logger
	workerID  string

	pollInterval  time.Duration
	retryInterval time.Duration
	staleAfter    time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	kick chan struct{}
	// ticking guards against overlapping ticks; a poll arriving while one
	// is in flight is a no-op.
	ticking atomic.Bool
}

// NewManager constructs a workflow manager around the queue and processor.
func NewManager(cfg *config.Config, jobs *queue.Store, processor Processor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	hostname, _ := os.Hostname()
	return &Manager{
		cfg:           cfg,
		jobs:          jobs,
		processor:     processor,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		workerID:      fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8]),
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		staleAfter:    time.Duration(cfg.Workflow.StaleLockSeconds) * time.Second,
		kick:          make(chan struct{}, 1),
	}
}

// WorkerID identifies this manager in job lock fields.
func (m *Manager) WorkerID() string { return m.workerID }

// Start launches the poll loop. Calling Start on a running manager is a
// no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.run(runCtx)
	m.logger.Info("workflow started",
		logging.String(logging.FieldWorker, m.workerID),
		logging.Duration("poll_interval", m.pollInterval))
	return nil
}

// Stop terminates the poll loop and waits for the in-flight tick. Calling
// Stop on a stopped manager is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Kick wakes the poll loop ahead of schedule, used right after a
// submission. The channel holds one pending kick; further kicks coalesce.
func (m *Manager) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()

	// Drain whatever is already queued before the first interval elapses.
	m.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.kick:
		case <-timer.C:
		}
		m.tick(ctx)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.pollInterval)
	}
}

// tick claims and processes jobs until the queue is drained. Overlapping
// ticks collapse to one.
func (m *Manager) tick(ctx context.Context) {
	if !m.ticking.CompareAndSwap(false, true) {
		return
	}
	defer m.ticking.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		staleBefore := time.Now().Add(-m.staleAfter)
		job, err := m.jobs.ClaimNext(ctx, m.workerID, staleBefore)
		if err != nil {
			m.logger.Warn("claim failed; retrying after backoff", logging.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(m.retryInterval):
			}
			return
		}
		if job == nil {
			return
		}

		m.logger.Info("job claimed",
			logging.String(logging.FieldJobID, job.PublicID),
			logging.String(logging.FieldStage, string(job.Stage)),
			logging.Int("attempt", job.Attempts))
		if err := m.processor.Process(ctx, job); err != nil {
			// Process already recorded the failure on the job.
			m.logger.Warn("job processing failed",
				logging.String(logging.FieldJobID, job.PublicID),
				logging.Error(err))
		}
	}
}
