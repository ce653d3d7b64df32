package chart

import (
	"math"
	"testing"
)

func TestGroupChordsMergesNearSimultaneousNotes(t *testing.T) {
	notes := []Note{
		{TimeMs: 1000, DurationMs: 200, Pitch: 64, Velocity: 0.8, Confidence: 1},
		{TimeMs: 1005, DurationMs: 350, Pitch: 60, Velocity: 0.8, Confidence: 1},
	}
	events := GroupChords(notes)
	if len(events) != 1 {
		t.Fatalf("expected one chord event, got %d", len(events))
	}
	event := events[0]
	if event.TimeMs != 1000 {
		t.Errorf("onset = %d, want 1000", event.TimeMs)
	}
	if event.DurationMs != 350 {
		t.Errorf("duration = %d, want max of group 350", event.DurationMs)
	}
	if len(event.Notes) != 2 || event.Notes[0] != 60 || event.Notes[1] != 64 {
		t.Errorf("notes = %v, want ascending [60 64]", event.Notes)
	}
	if math.Abs(event.Velocity-0.8) > 1e-9 {
		t.Errorf("velocity = %f, want averaged 0.8", event.Velocity)
	}
}

func TestGroupChordsKeepsDistantNotesSeparate(t *testing.T) {
	notes := []Note{
		{TimeMs: 0, DurationMs: 100, Pitch: 60, Velocity: 1, Confidence: 1},
		{TimeMs: 13, DurationMs: 100, Pitch: 62, Velocity: 1, Confidence: 1},
	}
	events := GroupChords(notes)
	if len(events) != 2 {
		t.Fatalf("13 ms apart must stay separate, got %d events", len(events))
	}
}

func TestGroupChordsDedupesPitches(t *testing.T) {
	notes := []Note{
		{TimeMs: 0, DurationMs: 100, Pitch: 60, Velocity: 1, Confidence: 1},
		{TimeMs: 4, DurationMs: 150, Pitch: 60, Velocity: 0.5, Confidence: 1},
	}
	events := GroupChords(notes)
	if len(events) != 1 || len(events[0].Notes) != 1 {
		t.Fatalf("duplicate pitches should collapse: %+v", events)
	}
}

func TestCleanupConfidenceFloorRemovesAllWithWarning(t *testing.T) {
	events := []Event{
		{TimeMs: 0, DurationMs: 100, Notes: []int{60}, Velocity: 1, Confidence: 0.1},
		{TimeMs: 500, DurationMs: 100, Notes: []int{64}, Velocity: 1, Confidence: 0.2},
	}
	result := Cleanup(events, CleanupOptions{ConfidenceFloor: 0.5, Preset: PresetGuitar, MinDurationMs: 30})
	if len(result.Events) != 0 {
		t.Fatalf("expected empty output, got %d events", len(result.Events))
	}
	if result.DroppedLowConf != 2 {
		t.Errorf("dropped count = %d, want 2", result.DroppedLowConf)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Code != "cleanup_removed_all_notes" {
		t.Fatalf("missing removed-all warning: %+v", result.Warnings)
	}
}

func TestCleanupRangeFilterAndClamp(t *testing.T) {
	events := []Event{
		{TimeMs: 0, DurationMs: 100000, Notes: []int{20, 60}, Velocity: 1, Confidence: 1},
		{TimeMs: 500, DurationMs: 0, Notes: []int{20}, Velocity: 1, Confidence: 1},
	}
	result := Cleanup(events, CleanupOptions{Preset: PresetGuitar, MinDurationMs: 30})
	if len(result.Events) != 1 {
		t.Fatalf("expected one surviving event, got %d", len(result.Events))
	}
	if result.DroppedOutOfRange != 1 {
		t.Errorf("out-of-range drops = %d, want 1", result.DroppedOutOfRange)
	}
	event := result.Events[0]
	if len(event.Notes) != 1 || event.Notes[0] != 60 {
		t.Errorf("out-of-range pitch kept: %v", event.Notes)
	}
	if event.DurationMs != 60000 {
		t.Errorf("duration = %d, want clamp to 60000", event.DurationMs)
	}
}

func TestCleanupMergesDuplicateEvents(t *testing.T) {
	events := []Event{
		{TimeMs: 100, DurationMs: 50, Notes: []int{60, 64}, Velocity: 1, Confidence: 0.8},
		{TimeMs: 108, DurationMs: 120, Notes: []int{60, 64}, Velocity: 1, Confidence: 0.9},
	}
	result := Cleanup(events, CleanupOptions{Preset: PresetGuitar, MinDurationMs: 30})
	if len(result.Events) != 1 {
		t.Fatalf("expected merge, got %d events", len(result.Events))
	}
	if result.Events[0].DurationMs != 120 {
		t.Errorf("merged duration = %d, want 120", result.Events[0].DurationMs)
	}
	if result.MergedDuplicates != 1 {
		t.Errorf("merge count = %d, want 1", result.MergedDuplicates)
	}
}

func TestCleanupCollapseChords(t *testing.T) {
	events := []Event{
		{TimeMs: 0, DurationMs: 100, Notes: []int{60, 64, 67}, Velocity: 1, Confidence: 1},
	}
	result := Cleanup(events, CleanupOptions{Preset: PresetGuitar, MinDurationMs: 30, CollapseChords: true})
	if len(result.Events) != 1 || len(result.Events[0].Notes) != 1 || result.Events[0].Notes[0] != 67 {
		t.Fatalf("expected highest pitch only, got %+v", result.Events)
	}
}

func TestTrackBeatsSteadyOnsets(t *testing.T) {
	events := make([]Event, 0, 45)
	for i := 0; i < 45; i++ {
		events = append(events, Event{TimeMs: i * 500, DurationMs: 100, Notes: []int{60}, Velocity: 1, Confidence: 1})
	}
	result := TrackBeats(events, 0)
	if result.Source != BPMSourceDetected {
		t.Fatalf("source = %s, want detected", result.Source)
	}
	if math.Abs(result.BPM-120) > 0.5 {
		t.Errorf("BPM = %f, want ~120", result.BPM)
	}
	if result.Confidence < beatConfidenceAccept {
		t.Errorf("confidence = %f, want >= %f", result.Confidence, beatConfidenceAccept)
	}
}

func TestTrackBeatsManualFallback(t *testing.T) {
	events := []Event{
		{TimeMs: 0, DurationMs: 100, Notes: []int{60}},
		{TimeMs: 700, DurationMs: 100, Notes: []int{62}},
	}
	result := TrackBeats(events, 95)
	if result.Source != BPMSourceManualFallback {
		t.Fatalf("source = %s, want manual_fallback", result.Source)
	}
	if result.BPM != 95 {
		t.Errorf("BPM = %f, want manual 95", result.BPM)
	}
	if len(result.Warnings) == 0 || result.Warnings[0].Code != "weak_beat_detection" {
		t.Errorf("missing weak detection warning: %+v", result.Warnings)
	}
}

func TestTrackBeatsNoManualNoConfidence(t *testing.T) {
	result := TrackBeats(nil, 0)
	if result.Source != BPMSourceNone {
		t.Fatalf("source = %s, want none", result.Source)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected low-confidence warning")
	}
}

func TestNormalizeBPMOctaveFolding(t *testing.T) {
	cases := map[float64]float64{240: 120, 60: 120, 100: 100, 400: 100}
	for in, want := range cases {
		if got := normalizeBPM(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("normalizeBPM(%f) = %f, want %f", in, got, want)
		}
	}
}

func TestQuantizeSnapsToGrid(t *testing.T) {
	events := []Event{
		{TimeMs: 130, DurationMs: 40, Notes: []int{60}, Velocity: 1, Confidence: 1},
	}
	// 120 BPM sixteenths: step 125 ms.
	quantized, warnings := Quantize(events, QuantizeSixteenth, 120)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if quantized[0].TimeMs != 125 {
		t.Errorf("time = %d, want 125", quantized[0].TimeMs)
	}
	if quantized[0].DurationMs != 125 {
		t.Errorf("duration = %d, want one step 125", quantized[0].DurationMs)
	}
}

func TestQuantizeIdempotent(t *testing.T) {
	events := []Event{
		{TimeMs: 133, DurationMs: 460, Notes: []int{60}},
		{TimeMs: 617, DurationMs: 130, Notes: []int{64}},
		{TimeMs: 1004, DurationMs: 333, Notes: []int{67}},
	}
	once, _ := Quantize(events, QuantizeEighth, 131)
	twice, _ := Quantize(once, QuantizeEighth, 131)
	for i := range once {
		if once[i].TimeMs != twice[i].TimeMs || once[i].DurationMs != twice[i].DurationMs {
			t.Fatalf("quantize not idempotent at %d: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestQuantizeOffAndMissingBPM(t *testing.T) {
	events := []Event{{TimeMs: 133, DurationMs: 40, Notes: []int{60}}}
	unchanged, warnings := Quantize(events, QuantizeOff, 120)
	if len(warnings) != 0 || unchanged[0].TimeMs != 133 {
		t.Fatal("off mode must be a silent no-op")
	}
	unchanged, warnings = Quantize(events, QuantizeEighth, 0)
	if len(warnings) != 1 || warnings[0].Code != "quantize_skipped_no_bpm" {
		t.Fatalf("expected no-bpm warning, got %+v", warnings)
	}
	if unchanged[0].TimeMs != 133 {
		t.Error("no-bpm quantize must not move events")
	}
}

func TestValidateCatchesDisorder(t *testing.T) {
	bad := []Event{
		{TimeMs: 100, DurationMs: 10, Notes: []int{60}},
		{TimeMs: 50, DurationMs: 10, Notes: []int{62}},
	}
	if err := Validate(bad); err == nil {
		t.Fatal("expected ordering error")
	}
	good := GroupChords([]Note{
		{TimeMs: 50, DurationMs: 10, Pitch: 62, Velocity: 1, Confidence: 1},
		{TimeMs: 100, DurationMs: 10, Pitch: 60, Velocity: 1, Confidence: 1},
	})
	if err := Validate(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
