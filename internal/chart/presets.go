package chart

import (
	"math"
	"strings"
)

// Preset constrains transcription and cleanup to one instrument's range.
type Preset struct {
	Name     string
	MinPitch int
	MaxPitch int
}

var (
	// PresetGuitar covers standard-tuned six-string guitar, E2 through E6.
	PresetGuitar = Preset{Name: "guitar", MinPitch: 40, MaxPitch: 88}
	// PresetBass covers four-string bass, E1 through G4.
	PresetBass = Preset{Name: "bass", MinPitch: 28, MaxPitch: 67}
)

// PresetByName resolves an instrument preset, defaulting to guitar.
func PresetByName(name string) Preset {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bass":
		return PresetBass
	default:
		return PresetGuitar
	}
}

// Contains reports whether a MIDI pitch falls inside the preset range.
func (p Preset) Contains(pitch int) bool {
	return pitch >= p.MinPitch && pitch <= p.MaxPitch
}

// MinFrequencyHz returns the lower frequency bound handed to the
// transcription tool.
func (p Preset) MinFrequencyHz() float64 {
	return midiToHz(p.MinPitch)
}

// MaxFrequencyHz returns the upper frequency bound handed to the
// transcription tool.
func (p Preset) MaxFrequencyHz() float64 {
	return midiToHz(p.MaxPitch)
}

func midiToHz(pitch int) float64 {
	return 440 * math.Pow(2, float64(pitch-69)/12)
}
