package chart

import (
	"fmt"
	"sort"
)

// Event is one playable chart entry: one or more simultaneous pitches
// sharing an onset and duration.
type Event struct {
	TimeMs     int     `json:"timeMs"`
	DurationMs int     `json:"durationMs"`
	Notes      []int   `json:"notes"`
	Velocity   float64 `json:"velocity"`
	Confidence float64 `json:"confidence"`
}

// Note is a single-pitch observation prior to chord grouping, as produced by
// the MIDI importer and the transcriber.
type Note struct {
	TimeMs     int
	DurationMs int
	Pitch      int
	Velocity   float64
	Confidence float64
}

// Warning records a non-fatal pipeline condition surfaced to the reviewer.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// BPMSource identifies how the chart's tempo hint was obtained.
type BPMSource string

const (
	BPMSourceDetected       BPMSource = "detected"
	BPMSourceManualFallback BPMSource = "manual_fallback"
	BPMSourceNone           BPMSource = "none"
)

// Chart is the produced artifact consumed by the editor and gameplay.
type Chart struct {
	Title    string  `json:"title"`
	AudioURL string  `json:"audioUrl,omitempty"`
	OffsetMs int     `json:"offsetMs"`
	BPMHint  float64 `json:"bpmHint,omitempty"`
	Events   []Event `json:"events"`
}

// ChordWindowMs is the onset proximity within which two notes are merged
// into one chord event.
const ChordWindowMs = 12

// SortEvents orders events by (TimeMs, DurationMs) in place.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].TimeMs != events[j].TimeMs {
			return events[i].TimeMs < events[j].TimeMs
		}
		return events[i].DurationMs < events[j].DurationMs
	})
}

// GroupChords merges near-simultaneous notes into chord events. Notes whose
// onsets fall within ChordWindowMs of the group's anchor join the group: the
// duration becomes the maximum of the group, pitches accumulate uniquely, and
// velocity and confidence are averaged.
func GroupChords(notes []Note) []Event {
	if len(notes) == 0 {
		return []Event{}
	}

	sorted := make([]Note, len(notes))
	copy(sorted, notes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimeMs < sorted[j].TimeMs })

	events := make([]Event, 0, len(sorted))
	group := []Note{sorted[0]}
	anchor := sorted[0].TimeMs
	for _, note := range sorted[1:] {
		if note.TimeMs-anchor <= ChordWindowMs {
			group = append(group, note)
			continue
		}
		events = append(events, collapseGroup(group))
		group = []Note{note}
		anchor = note.TimeMs
	}
	events = append(events, collapseGroup(group))
	SortEvents(events)
	return events
}

func collapseGroup(group []Note) Event {
	event := Event{TimeMs: group[0].TimeMs}
	pitches := make(map[int]struct{}, len(group))
	var velocity, confidence float64
	for _, note := range group {
		if note.DurationMs > event.DurationMs {
			event.DurationMs = note.DurationMs
		}
		pitches[note.Pitch] = struct{}{}
		velocity += note.Velocity
		confidence += note.Confidence
	}
	event.Velocity = velocity / float64(len(group))
	event.Confidence = confidence / float64(len(group))
	event.Notes = make([]int, 0, len(pitches))
	for pitch := range pitches {
		event.Notes = append(event.Notes, pitch)
	}
	sort.Ints(event.Notes)
	return event
}

// samePitches reports whether two sorted pitch sets are identical.
func samePitches(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Validate reports the first structural problem in a chart event list, or nil.
func Validate(events []Event) error {
	lastTime := -1
	for i, event := range events {
		if event.TimeMs < 0 {
			return fmt.Errorf("event %d: negative time %d", i, event.TimeMs)
		}
		if event.TimeMs < lastTime {
			return fmt.Errorf("event %d: out of order at %d ms", i, event.TimeMs)
		}
		lastTime = event.TimeMs
		if event.DurationMs < 1 {
			return fmt.Errorf("event %d: duration %d below 1 ms", i, event.DurationMs)
		}
		if len(event.Notes) == 0 {
			return fmt.Errorf("event %d: no pitches", i)
		}
		for j, pitch := range event.Notes {
			if pitch < 0 || pitch > 127 {
				return fmt.Errorf("event %d: pitch %d out of MIDI range", i, pitch)
			}
			if j > 0 && pitch <= event.Notes[j-1] {
				return fmt.Errorf("event %d: pitches not strictly ascending", i)
			}
		}
	}
	return nil
}
