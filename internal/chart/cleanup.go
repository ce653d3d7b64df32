package chart

import "sort"

// CleanupOptions tunes the cleanup filter.
type CleanupOptions struct {
	ConfidenceFloor float64
	Preset          Preset
	MinDurationMs   int
	// CollapseChords keeps only the highest pitch of every chord, for
	// single-string play styles.
	CollapseChords bool
}

// duplicateWindowMs is the onset proximity within which two events sharing an
// identical pitch set collapse into one.
const duplicateWindowMs = 10

// maxDurationMs caps any single event at one minute.
const maxDurationMs = 60000

// CleanupResult reports the filtered events plus per-step drop counts.
type CleanupResult struct {
	Events           []Event
	DroppedLowConf   int
	DroppedOutOfRange int
	MergedDuplicates int
	Warnings         []Warning
}

// Cleanup normalizes, filters, and dedupes a raw event list. Steps run in a
// fixed order: field normalization, confidence floor, instrument range,
// duplicate merge, duration clamp, optional chord collapse. Emptying a
// non-empty input produces a distinct warning rather than an error.
func Cleanup(events []Event, opts CleanupOptions) CleanupResult {
	result := CleanupResult{}
	inputCount := len(events)

	normalized := make([]Event, 0, len(events))
	for _, event := range events {
		event = normalizeEvent(event)
		if len(event.Notes) == 0 {
			continue
		}
		normalized = append(normalized, event)
	}

	kept := make([]Event, 0, len(normalized))
	for _, event := range normalized {
		if event.Confidence < opts.ConfidenceFloor {
			result.DroppedLowConf++
			continue
		}
		inRange := event.Notes[:0:0]
		for _, pitch := range event.Notes {
			if opts.Preset.Contains(pitch) {
				inRange = append(inRange, pitch)
			}
		}
		if len(inRange) == 0 {
			result.DroppedOutOfRange++
			continue
		}
		event.Notes = inRange
		kept = append(kept, event)
	}

	SortEvents(kept)
	merged := make([]Event, 0, len(kept))
	for _, event := range kept {
		if n := len(merged); n > 0 {
			prev := &merged[n-1]
			if event.TimeMs-prev.TimeMs <= duplicateWindowMs && samePitches(prev.Notes, event.Notes) {
				if event.DurationMs > prev.DurationMs {
					prev.DurationMs = event.DurationMs
				}
				if event.Confidence > prev.Confidence {
					prev.Confidence = event.Confidence
				}
				result.MergedDuplicates++
				continue
			}
		}
		merged = append(merged, event)
	}

	minDuration := opts.MinDurationMs
	if minDuration < 1 {
		minDuration = 1
	}
	for i := range merged {
		if merged[i].DurationMs < minDuration {
			merged[i].DurationMs = minDuration
		}
		if merged[i].DurationMs > maxDurationMs {
			merged[i].DurationMs = maxDurationMs
		}
		if opts.CollapseChords && len(merged[i].Notes) > 1 {
			merged[i].Notes = []int{merged[i].Notes[len(merged[i].Notes)-1]}
		}
	}

	result.Events = merged
	if inputCount > 0 && len(merged) == 0 {
		result.Warnings = append(result.Warnings, Warning{
			Code:    "cleanup_removed_all_notes",
			Message: "cleanup filtering removed every note from the chart",
			Count:   inputCount,
		})
	}
	return result
}

func normalizeEvent(event Event) Event {
	if event.TimeMs < 0 {
		event.TimeMs = 0
	}
	if event.DurationMs < 1 {
		event.DurationMs = 1
	}
	event.Velocity = clamp01(event.Velocity)
	event.Confidence = clamp01(event.Confidence)

	seen := make(map[int]struct{}, len(event.Notes))
	pitches := make([]int, 0, len(event.Notes))
	for _, pitch := range event.Notes {
		if pitch < 0 || pitch > 127 {
			continue
		}
		if _, dup := seen[pitch]; dup {
			continue
		}
		seen[pitch] = struct{}{}
		pitches = append(pitches, pitch)
	}
	sort.Ints(pitches)
	event.Notes = pitches
	return event
}
