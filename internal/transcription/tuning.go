package transcription

import "strings"

// Tuning adjusts transcription sensitivity. Stricter profiles trade recall
// for fewer phantom notes.
type Tuning struct {
	Name string
	// ConfidenceThreshold drops notes whose confidence falls below it.
	ConfidenceThreshold float64
	// MinNoteLengthMs is both handed to the transcription tool and applied
	// again in the post-filter chain.
	MinNoteLengthMs int
	// IntroGateMarginMs widens the pre-activity gate: notes earlier than
	// firstActivity minus this margin are dropped as transcription noise.
	IntroGateMarginMs int
}

var (
	TuningStandard  = Tuning{Name: "standard", ConfidenceThreshold: 0.30, MinNoteLengthMs: 60, IntroGateMarginMs: 150}
	TuningSensitive = Tuning{Name: "sensitive", ConfidenceThreshold: 0.20, MinNoteLengthMs: 40, IntroGateMarginMs: 250}
	TuningStrict    = Tuning{Name: "strict", ConfidenceThreshold: 0.45, MinNoteLengthMs: 90, IntroGateMarginMs: 80}
)

// TuningByName resolves a tuning profile, defaulting to standard.
func TuningByName(name string) Tuning {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sensitive":
		return TuningSensitive
	case "strict":
		return TuningStrict
	default:
		return TuningStandard
	}
}
