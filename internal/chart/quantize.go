package chart

import (
	"math"
	"strings"
)

// Quantization selects the rhythmic grid events snap to.
type Quantization string

const (
	QuantizeOff       Quantization = "off"
	QuantizeEighth    Quantization = "eighth"
	QuantizeSixteenth Quantization = "sixteenth"
)

// ParseQuantization normalizes a requested quantization mode, defaulting to off.
func ParseQuantization(value string) Quantization {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "eighth", "1/8":
		return QuantizeEighth
	case "sixteenth", "1/16":
		return QuantizeSixteenth
	default:
		return QuantizeOff
	}
}

func (q Quantization) division() int {
	switch q {
	case QuantizeEighth:
		return 2
	case QuantizeSixteenth:
		return 4
	default:
		return 0
	}
}

// Quantize snaps event starts and durations to the grid derived from the
// beat period. A no-op when quantization is off; a warned no-op when no BPM
// is available. Quantizing an already quantized chart with the same grid is
// a fixed point.
func Quantize(events []Event, mode Quantization, bpm float64) ([]Event, []Warning) {
	division := mode.division()
	if division == 0 {
		return events, nil
	}
	if bpm <= 0 {
		return events, []Warning{{
			Code:    "quantize_skipped_no_bpm",
			Message: "quantization requested but no BPM is available; timing left unquantized",
		}}
	}

	step := 60000 / bpm / float64(division)
	quantized := make([]Event, len(events))
	for i, event := range events {
		event.TimeMs = snap(float64(event.TimeMs), step)
		duration := snap(float64(event.DurationMs), step)
		if duration < int(math.Round(step)) {
			duration = int(math.Round(step))
		}
		event.DurationMs = duration
		quantized[i] = event
	}
	SortEvents(quantized)
	return quantized, nil
}

func snap(value, step float64) int {
	return int(math.Round(math.Round(value/step) * step))
}
