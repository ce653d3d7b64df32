package levels_test

import (
	"context"
	"path/filepath"
	"testing"

	"chartsmith/internal/chart"
	"chartsmith/internal/levels"
)

func newTestStore(t *testing.T) *levels.Store {
	t.Helper()
	store, err := levels.Open(filepath.Join(t.TempDir(), "chartsmith.db"))
	if err != nil {
		t.Fatalf("open level store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleChart() chart.Chart {
	return chart.Chart{
		Title:   "Riff",
		BPMHint: 120,
		Events: []chart.Event{
			{TimeMs: 0, DurationMs: 250, Notes: []int{52}, Velocity: 0.9, Confidence: 1},
		},
	}
}

func TestSaveDraftCreatesLevelAndVersion(t *testing.T) {
	store := newTestStore(t)

	version, err := store.SaveDraft(context.Background(), "owner-1", "", "Riff", sampleChart())
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if version.VersionNumber != 1 {
		t.Errorf("version number = %d, want 1", version.VersionNumber)
	}

	level, err := store.GetLevel(context.Background(), version.LevelID)
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level == nil || level.CurrentDraftVersionID != version.ID {
		t.Fatalf("draft pointer not advanced: %+v", level)
	}
	if level.Status != levels.LevelDraft {
		t.Errorf("level status = %s, want draft", level.Status)
	}
}

func TestSaveDraftVersionNumbersIncrease(t *testing.T) {
	store := newTestStore(t)

	first, err := store.SaveDraft(context.Background(), "owner-1", "", "Riff", sampleChart())
	if err != nil {
		t.Fatalf("first draft: %v", err)
	}
	second, err := store.SaveDraft(context.Background(), "owner-1", first.LevelID, "Riff v2", sampleChart())
	if err != nil {
		t.Fatalf("second draft: %v", err)
	}
	if second.VersionNumber != first.VersionNumber+1 {
		t.Errorf("version = %d, want %d", second.VersionNumber, first.VersionNumber+1)
	}

	stored, err := store.GetVersion(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if stored.Chart.BPMHint != 120 || len(stored.Chart.Events) != 1 {
		t.Errorf("chart payload mangled: %+v", stored.Chart)
	}
}

func TestSaveDraftRejectsForeignLevel(t *testing.T) {
	store := newTestStore(t)
	first, err := store.SaveDraft(context.Background(), "owner-1", "", "Riff", sampleChart())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.SaveDraft(context.Background(), "owner-2", first.LevelID, "Steal", sampleChart()); err == nil {
		t.Fatal("expected ownership rejection")
	}
}
