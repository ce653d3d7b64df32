package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"chartsmith/internal/assets"
	"chartsmith/internal/chart"
	"chartsmith/internal/config"
	"chartsmith/internal/levels"
	"chartsmith/internal/logging"
	"chartsmith/internal/media"
	"chartsmith/internal/midiimport"
	"chartsmith/internal/queue"
	"chartsmith/internal/services"
	"chartsmith/internal/transcription"
)

type env struct {
	cfg    *config.Config
	jobs   *queue.Store
	assets *assets.Store
	levels *levels.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	defaults := config.Default()
	cfg := &defaults
	cfg.Paths.DataDir = root
	cfg.Paths.StagingDir = filepath.Join(root, "staging")
	cfg.Paths.AssetDir = filepath.Join(root, "assets")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	jobs, err := queue.OpenPath(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })

	assetStore, err := assets.Open(cfg.DatabasePath(), cfg.Paths.AssetDir)
	if err != nil {
		t.Fatalf("open assets: %v", err)
	}
	t.Cleanup(func() { assetStore.Close() })

	levelStore, err := levels.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open levels: %v", err)
	}
	t.Cleanup(func() { levelStore.Close() })

	return &env{cfg: cfg, jobs: jobs, assets: assetStore, levels: levelStore}
}

// claim enqueues a job and claims it so it is in the state the workflow
// hands to the orchestrator.
func (e *env) claim(t *testing.T, req queue.NewJob) *queue.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := e.jobs.Enqueue(ctx, req); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := e.jobs.ClaimNext(ctx, "test-worker", time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil {
		t.Fatal("claim returned no job")
	}
	return job
}

func writeMIDIFixture(t *testing.T, dir string, bpm float64) string {
	t.Helper()
	data := smf.New()
	data.TimeFormat = smf.MetricTicks(960)
	var track smf.Track
	track.Add(0, smf.MetaTempo(bpm))
	for i := 0; i < 8; i++ {
		track.Add(960, midi.NoteOn(0, uint8(60+i%4), 100))
		track.Add(480, midi.NoteOff(0, uint8(60+i%4)))
	}
	track.Close(0)
	if err := data.Add(track); err != nil {
		t.Fatalf("build midi: %v", err)
	}
	path := filepath.Join(dir, "take.mid")
	if err := data.WriteFile(path); err != nil {
		t.Fatalf("write midi: %v", err)
	}
	return path
}

type stubPre struct {
	wavPath string
}

func (s *stubPre) Transcode(ctx context.Context, inputPath, stagingDir, jobID string) (string, error) {
	return s.wavPath, nil
}

func (s *stubPre) Probe(ctx context.Context, path string) (media.Metadata, []chart.Warning) {
	return media.Metadata{DurationSec: 30, SampleRate: 44100, Channels: 1}, nil
}

type stubSep struct {
	calls int
}

func (s *stubSep) Separate(ctx context.Context, inputPath, stagingDir, jobID, target string) (string, []chart.Warning) {
	s.calls++
	return inputPath, []chart.Warning{{Code: "separation_unavailable", Message: "stub"}}
}

type stubTrans struct {
	result transcription.Result
	err    error
}

func (s *stubTrans) Transcribe(ctx context.Context, audioPath, stagingDir, jobID string, preset chart.Preset, tuning transcription.Tuning) (transcription.Result, error) {
	return s.result, s.err
}

func TestProcessMIDIJobEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	midiPath := writeMIDIFixture(t, t.TempDir(), 100)
	asset, err := e.assets.ImportFile(ctx, "owner-1", assets.KindMIDISource, midiPath, "audio/midi")
	if err != nil {
		t.Fatalf("import asset: %v", err)
	}

	job := e.claim(t, queue.NewJob{
		OwnerID:       "owner-1",
		SourceType:    queue.SourceMIDI,
		SourceAssetID: asset.ID,
		Params:        queue.Params{Title: "Test Song", Quantization: "off"},
	})

	orch := New(e.cfg, e.jobs, e.assets, e.levels, logging.NewNop())
	if err := orch.Process(ctx, job); err != nil {
		t.Fatalf("process: %v", err)
	}

	updated, err := e.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if updated.Status != queue.StatusAwaitingReview {
		t.Fatalf("expected awaiting_review, got %s (%s / %s)", updated.Status, updated.ErrorCode, updated.ErrorDetails)
	}
	if updated.ProgressPercent != 100 || updated.Stage != queue.StageComplete {
		t.Fatalf("expected complete at 100%%, got %s/%d", updated.Stage, updated.ProgressPercent)
	}
	if updated.LockedBy != "" || updated.LockedAt != nil {
		t.Fatal("lock should be released on success")
	}

	result, err := updated.Result()
	if err != nil || result == nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Chart.BPMHint != 100 {
		t.Fatalf("expected header BPM 100, got %v", result.Chart.BPMHint)
	}
	if len(result.Chart.Events) != 8 {
		t.Fatalf("expected 8 events, got %d", len(result.Chart.Events))
	}
	if result.LevelID == "" || result.VersionNumber != 1 {
		t.Fatalf("expected first draft version, got %+v", result)
	}

	level, err := e.levels.GetLevel(ctx, result.LevelID)
	if err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.Title != "Test Song" || level.CurrentDraftVersionID == "" {
		t.Fatalf("level pointer not advanced: %+v", level)
	}
}

func TestProcessStaleWorkerCannotOverrideFinishedJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	midiPath := writeMIDIFixture(t, t.TempDir(), 100)
	asset, err := e.assets.ImportFile(ctx, "owner-1", assets.KindMIDISource, midiPath, "audio/midi")
	if err != nil {
		t.Fatalf("import asset: %v", err)
	}

	stale := e.claim(t, queue.NewJob{
		OwnerID:       "owner-1",
		SourceType:    queue.SourceMIDI,
		SourceAssetID: asset.ID,
		Params:        queue.Params{Title: "Test Song", Quantization: "off"},
		MaxAttempts:   5,
	})

	// The claim goes stale and another worker reclaims and finishes the
	// job while the first worker is still holding its old handle.
	fresh, err := e.jobs.ClaimNext(ctx, "worker-b", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if fresh == nil || fresh.ID != stale.ID {
		t.Fatalf("expected worker-b to reclaim job %d, got %+v", stale.ID, fresh)
	}
	finished := queue.Result{LevelID: "level-by-b", VersionNumber: 1}
	if err := e.jobs.MarkAwaitingReview(ctx, fresh.ID, "worker-b", finished); err != nil {
		t.Fatalf("finish as worker-b: %v", err)
	}

	orch := New(e.cfg, e.jobs, e.assets, e.levels, logging.NewNop())
	if err := orch.Process(ctx, stale); !errors.Is(err, queue.ErrClaimLost) {
		t.Fatalf("stale Process error = %v, want ErrClaimLost", err)
	}

	updated, err := e.jobs.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if updated.Status != queue.StatusAwaitingReview {
		t.Fatalf("terminal status overwritten: %s", updated.Status)
	}
	if updated.ErrorCode != "" {
		t.Fatalf("stale worker recorded error %q on a finished job", updated.ErrorCode)
	}
	result, err := updated.Result()
	if err != nil || result == nil || result.LevelID != "level-by-b" {
		t.Fatalf("finished result overwritten: %+v err=%v", result, err)
	}
}

func TestProcessFullMixAudioJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	audioSrc := filepath.Join(t.TempDir(), "mix.mp3")
	if err := os.WriteFile(audioSrc, []byte("mp3bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	asset, err := e.assets.ImportFile(ctx, "owner-1", assets.KindAudioSource, audioSrc, "audio/mpeg")
	if err != nil {
		t.Fatalf("import asset: %v", err)
	}

	job := e.claim(t, queue.NewJob{
		OwnerID:       "owner-1",
		SourceType:    queue.SourceFullMixAudio,
		SourceAssetID: asset.ID,
		Params: queue.Params{
			Title:        "Loud Song",
			ManualBPM:    120,
			SelectedStem: "vocals",
		},
	})

	sep := &stubSep{}
	trans := &stubTrans{result: transcription.Result{
		Events: []chart.Event{
			{TimeMs: 0, DurationMs: 200, Notes: []int{60}, Velocity: 0.8, Confidence: 0.9},
			{TimeMs: 500, DurationMs: 200, Notes: []int{64}, Velocity: 0.8, Confidence: 0.9},
		},
	}}
	orch := NewWithServices(e.cfg, e.jobs, e.assets, e.levels,
		midiimport.New(logging.NewNop()),
		&stubPre{wavPath: asset.Path},
		sep, trans, logging.NewNop())

	if err := orch.Process(ctx, job); err != nil {
		t.Fatalf("process: %v", err)
	}
	if sep.calls != 1 {
		t.Fatalf("expected one separation call, got %d", sep.calls)
	}

	updated, _ := e.jobs.GetByID(ctx, job.ID)
	if updated.Status != queue.StatusAwaitingReview {
		t.Fatalf("expected awaiting_review, got %s (%s)", updated.Status, updated.ErrorDetails)
	}
	result, err := updated.Result()
	if err != nil || result == nil {
		t.Fatalf("decode result: %v", err)
	}
	if !hasWarning(result.Warnings, "separation_unavailable") {
		t.Fatalf("separator warning should accumulate, got %v", result.Warnings)
	}
	if result.Chart.AudioURL != asset.URL() {
		t.Fatalf("expected chart audio URL %s, got %s", asset.URL(), result.Chart.AudioURL)
	}
	if result.Chart.BPMHint != 120 {
		t.Fatalf("expected manual BPM fallback 120, got %v", result.Chart.BPMHint)
	}
}

func TestProcessStageErrorMarksFailed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	audioSrc := filepath.Join(t.TempDir(), "solo.wav")
	if err := os.WriteFile(audioSrc, []byte("wavbytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	asset, err := e.assets.ImportFile(ctx, "owner-1", assets.KindAudioSource, audioSrc, "audio/wav")
	if err != nil {
		t.Fatalf("import asset: %v", err)
	}

	job := e.claim(t, queue.NewJob{
		OwnerID:       "owner-1",
		SourceType:    queue.SourceIsolatedAudio,
		SourceAssetID: asset.ID,
		Params:        queue.Params{Title: "Broken"},
	})

	trans := &stubTrans{err: services.Wrap(services.ErrExternalTool, "transcribing", "transcribe", "pitch transcription tool crashed", errors.New("exit 1"))}
	orch := NewWithServices(e.cfg, e.jobs, e.assets, e.levels,
		midiimport.New(logging.NewNop()),
		&stubPre{wavPath: asset.Path},
		&stubSep{}, trans, logging.NewNop())

	if err := orch.Process(ctx, job); err == nil {
		t.Fatal("expected process error")
	}

	updated, _ := e.jobs.GetByID(ctx, job.ID)
	if updated.Status != queue.StatusFailed || updated.Stage != queue.StageFailed {
		t.Fatalf("expected failed, got %s/%s", updated.Status, updated.Stage)
	}
	if updated.ErrorCode != "external_tool_failed" {
		t.Fatalf("expected external_tool_failed, got %s", updated.ErrorCode)
	}
	if updated.ErrorMessage != failedMessage {
		t.Fatalf("expected fixed user message, got %q", updated.ErrorMessage)
	}
	if updated.ResultJSON != "" {
		t.Fatal("no partial result may survive a failure")
	}
	if updated.LockedBy != "" || updated.LockedAt != nil {
		t.Fatal("lock should be cleared on failure")
	}
}

func TestProcessMissingAssetFailsValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	job := e.claim(t, queue.NewJob{
		OwnerID:       "owner-1",
		SourceType:    queue.SourceMIDI,
		SourceAssetID: "no-such-asset",
		Params:        queue.Params{Title: "Ghost"},
	})

	orch := New(e.cfg, e.jobs, e.assets, e.levels, logging.NewNop())
	if err := orch.Process(ctx, job); err == nil {
		t.Fatal("expected validation error")
	}

	updated, _ := e.jobs.GetByID(ctx, job.ID)
	if updated.Status != queue.StatusFailed || updated.ErrorCode != "invalid_request" {
		t.Fatalf("expected invalid_request failure, got %s/%s", updated.Status, updated.ErrorCode)
	}
}

func hasWarning(warnings []chart.Warning, code string) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
