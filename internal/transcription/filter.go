package transcription

import (
	"sort"

	"chartsmith/internal/chart"
)

// mergeGapMs is the maximum gap between two same-pitch notes that still
// merges them into one sustained note.
const mergeGapMs = 20

// FilterStats counts what each post-filter step removed, for diagnostics.
type FilterStats struct {
	DroppedLowConfidence int
	DroppedOutOfRange    int
	DroppedPreActivity   int
	MergedSamePitch      int
	DroppedShort         int
}

// applyFilters runs the post-transcription filter chain in its fixed order:
// confidence threshold, preset pitch range, pre-activity gate, same-pitch
// merge, minimum duration.
func applyFilters(notes []chart.Note, tuning Tuning, preset chart.Preset, firstActivityMs int) ([]chart.Note, FilterStats) {
	var stats FilterStats

	kept := notes[:0:0]
	for _, note := range notes {
		if note.Confidence < tuning.ConfidenceThreshold {
			stats.DroppedLowConfidence++
			continue
		}
		kept = append(kept, note)
	}
	notes = kept

	kept = notes[:0:0]
	for _, note := range notes {
		if !preset.Contains(note.Pitch) {
			stats.DroppedOutOfRange++
			continue
		}
		kept = append(kept, note)
	}
	notes = kept

	gate := firstActivityMs - tuning.IntroGateMarginMs
	if gate > 0 {
		kept = notes[:0:0]
		for _, note := range notes {
			if note.TimeMs < gate {
				stats.DroppedPreActivity++
				continue
			}
			kept = append(kept, note)
		}
		notes = kept
	}

	notes, merged := mergeSamePitch(notes)
	stats.MergedSamePitch = merged

	kept = notes[:0:0]
	for _, note := range notes {
		if note.DurationMs < tuning.MinNoteLengthMs {
			stats.DroppedShort++
			continue
		}
		kept = append(kept, note)
	}
	return kept, stats
}

// mergeSamePitch joins same-pitch notes that overlap or sit within
// mergeGapMs of each other, keeping the earlier onset and extending the
// duration. Returns the merge count alongside the surviving notes.
func mergeSamePitch(notes []chart.Note) ([]chart.Note, int) {
	if len(notes) < 2 {
		return notes, 0
	}
	sorted := append([]chart.Note(nil), notes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Pitch != sorted[j].Pitch {
			return sorted[i].Pitch < sorted[j].Pitch
		}
		return sorted[i].TimeMs < sorted[j].TimeMs
	})

	var out []chart.Note
	merged := 0
	current := sorted[0]
	for _, note := range sorted[1:] {
		if note.Pitch == current.Pitch && note.TimeMs <= current.TimeMs+current.DurationMs+mergeGapMs {
			end := note.TimeMs + note.DurationMs
			if end > current.TimeMs+current.DurationMs {
				current.DurationMs = end - current.TimeMs
			}
			if note.Velocity > current.Velocity {
				current.Velocity = note.Velocity
			}
			if note.Confidence > current.Confidence {
				current.Confidence = note.Confidence
			}
			merged++
			continue
		}
		out = append(out, current)
		current = note
	}
	out = append(out, current)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeMs < out[j].TimeMs })
	return out, merged
}
