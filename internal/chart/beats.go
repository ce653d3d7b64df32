package chart

import "sort"

const (
	// Plausible beat period bounds: 30 BPM phrase gaps up to 500 BPM flurries
	// are discarded before taking the median.
	minOnsetDeltaMs = 120
	maxOnsetDeltaMs = 2000

	bpmFloor   = 70
	bpmCeiling = 190

	// beatConfidenceAccept is the detection confidence at which the tracked
	// tempo wins over a caller-provided manual BPM.
	beatConfidenceAccept = 0.45

	// confidence saturates once this many usable onset deltas contribute.
	fullConfidenceDeltas = 64
)

// BeatResult describes the tempo decision for a chart.
type BeatResult struct {
	BPM        float64
	PeriodMs   float64
	Confidence float64
	Source     BPMSource
	Warnings   []Warning
}

// TrackBeats estimates tempo from inter-onset intervals: deltas between
// consecutive event onsets are filtered to a plausible range, the median
// becomes the beat period, and the implied BPM is folded into [70,190] by
// octave doubling/halving. When detection confidence is weak the manual BPM
// (if any) wins with a warning.
func TrackBeats(events []Event, manualBPM float64) BeatResult {
	deltas := usableDeltas(events)
	detected, period := 0.0, 0.0
	if len(deltas) > 0 {
		period = median(deltas)
		detected = normalizeBPM(60000 / period)
		period = 60000 / detected
	}
	confidence := float64(len(deltas)) / fullConfidenceDeltas
	if confidence > 1 {
		confidence = 1
	}

	if detected > 0 && confidence >= beatConfidenceAccept {
		return BeatResult{BPM: detected, PeriodMs: period, Confidence: confidence, Source: BPMSourceDetected}
	}

	if manualBPM > 0 {
		return BeatResult{
			BPM:        manualBPM,
			PeriodMs:   60000 / manualBPM,
			Confidence: confidence,
			Source:     BPMSourceManualFallback,
			Warnings: []Warning{{
				Code:    "weak_beat_detection",
				Message: "tempo detection was inconclusive; using the provided manual BPM",
			}},
		}
	}

	result := BeatResult{BPM: detected, PeriodMs: period, Confidence: confidence, Source: BPMSourceNone}
	result.Warnings = append(result.Warnings, Warning{
		Code:    "low_confidence_bpm",
		Message: "tempo detection confidence is low; review the BPM hint before publishing",
	})
	return result
}

func usableDeltas(events []Event) []float64 {
	deltas := make([]float64, 0, len(events))
	for i := 1; i < len(events); i++ {
		delta := float64(events[i].TimeMs - events[i-1].TimeMs)
		if delta >= minOnsetDeltaMs && delta <= maxOnsetDeltaMs {
			deltas = append(deltas, delta)
		}
	}
	return deltas
}

func normalizeBPM(bpm float64) float64 {
	if bpm <= 0 {
		return 0
	}
	for bpm < bpmFloor {
		bpm *= 2
	}
	for bpm > bpmCeiling {
		bpm /= 2
	}
	return bpm
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
