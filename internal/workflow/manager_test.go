package workflow

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chartsmith/internal/config"
	"chartsmith/internal/logging"
	"chartsmith/internal/queue"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []int64
	done chan struct{}
}

func newRecordingProcessor(expect int) *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}, expect)}
}

func (p *recordingProcessor) Process(ctx context.Context, job *queue.Job) error {
	p.mu.Lock()
	p.seen = append(p.seen, job.ID)
	p.mu.Unlock()
	p.done <- struct{}{}
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func testManager(t *testing.T, processor Processor) (*Manager, *queue.Store) {
	t.Helper()
	defaults := config.Default()
	cfg := &defaults
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1

	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(cfg, store, processor, logging.NewNop()), store
}

func TestManagerProcessesQueuedJobs(t *testing.T) {
	processor := newRecordingProcessor(2)
	manager, store := testManager(t, processor)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.Enqueue(ctx, queue.NewJob{
			OwnerID:       "owner-1",
			SourceType:    queue.SourceMIDI,
			SourceAssetID: "asset",
			Params:        queue.Params{Title: "t"},
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-processor.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for job %d", i+1)
		}
	}
	if processor.count() != 2 {
		t.Fatalf("expected 2 processed jobs, got %d", processor.count())
	}
}

func TestManagerKickWakesPollLoop(t *testing.T) {
	processor := newRecordingProcessor(1)
	manager, store := testManager(t, processor)
	ctx := context.Background()

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	// Let the initial drain pass finish on the empty queue.
	time.Sleep(100 * time.Millisecond)

	if _, err := store.Enqueue(ctx, queue.NewJob{
		OwnerID:       "owner-1",
		SourceType:    queue.SourceMIDI,
		SourceAssetID: "asset",
		Params:        queue.Params{Title: "t"},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	manager.Kick()

	select {
	case <-processor.done:
	case <-time.After(5 * time.Second):
		t.Fatal("kick did not wake the poll loop")
	}
}

func TestManagerStartStopIdempotent(t *testing.T) {
	manager, _ := testManager(t, newRecordingProcessor(1))
	ctx := context.Background()

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	manager.Stop()
	manager.Stop()
}

func TestManagerClaimsWithOwnWorkerID(t *testing.T) {
	processor := newRecordingProcessor(1)
	manager, store := testManager(t, processor)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, queue.NewJob{
		OwnerID:       "owner-1",
		SourceType:    queue.SourceMIDI,
		SourceAssetID: "asset",
		Params:        queue.Params{Title: "t"},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	select {
	case <-processor.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	if jobs[0].LockedBy != manager.WorkerID() {
		t.Fatalf("expected lock holder %s, got %s", manager.WorkerID(), jobs[0].LockedBy)
	}
}
