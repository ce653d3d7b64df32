// Package midiimport converts standard MIDI files into chart events.
package midiimport

import (
	"fmt"
	"log/slog"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"

	"chartsmith/internal/chart"
	"chartsmith/internal/logging"
	"chartsmith/internal/services"
)

// fallbackBPM is only used for tick conversion when the file carries no
// tempo event and the caller supplied no manual BPM. It never becomes the
// chart's BPM hint.
const fallbackBPM = 120.0

// Result carries the imported events plus the resolved tempo.
type Result struct {
	Events    []chart.Event
	BPM       float64
	BPMSource chart.BPMSource
	Warnings  []chart.Warning
}

// Importer reads standard MIDI files and produces chord-grouped events
// from the densest note track.
type Importer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Importer{logger: logger}
}

// Import parses the MIDI file at path and builds chart events from the
// track containing the most notes. Tempo resolution order is file header
// tempo, then manualBPM, then none with a warning. An empty result is not
// an error.
func (im *Importer) Import(path string, manualBPM float64) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "building_chart", "open_midi", "MIDI source file could not be opened", err)
	}
	defer file.Close()

	data, err := smf.ReadFrom(file)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "building_chart", "parse_midi", "file is not a valid standard MIDI file", err)
	}
	ticks, ok := data.TimeFormat.(smf.MetricTicks)
	if !ok {
		return Result{}, services.Wrap(services.ErrValidation, "building_chart", "parse_midi", "SMPTE time division is not supported", fmt.Errorf("time format %v", data.TimeFormat))
	}

	headerBPM := firstTempo(data)
	conversionBPM := headerBPM
	if conversionBPM <= 0 {
		conversionBPM = manualBPM
	}
	if conversionBPM <= 0 {
		conversionBPM = fallbackBPM
	}

	var best []chart.Note
	bestTrack := -1
	for i, track := range data.Tracks {
		notes := trackNotes(track, ticks, conversionBPM)
		if len(notes) > len(best) {
			best = notes
			bestTrack = i
		}
	}

	result := Result{Events: chart.GroupChords(best)}
	switch {
	case headerBPM > 0:
		result.BPM = headerBPM
		result.BPMSource = chart.BPMSourceDetected
	case manualBPM > 0:
		result.BPM = manualBPM
		result.BPMSource = chart.BPMSourceManualFallback
	default:
		result.BPMSource = chart.BPMSourceNone
		result.Warnings = append(result.Warnings, chart.Warning{
			Code:    "bpm_unknown",
			Message: "MIDI file carries no tempo and no manual BPM was provided",
		})
	}
	if len(result.Events) == 0 {
		result.Warnings = append(result.Warnings, chart.Warning{
			Code:    "empty_chart",
			Message: "MIDI file contained no playable notes",
		})
	}

	im.logger.Debug("MIDI import complete",
		logging.String("path", path),
		logging.Int("track", bestTrack),
		logging.Int("events", len(result.Events)),
		logging.Float64("bpm", result.BPM),
		logging.String("bpm_source", string(result.BPMSource)))
	return result, nil
}

// firstTempo returns the earliest tempo meta event across all tracks, or 0.
func firstTempo(data *smf.SMF) float64 {
	for _, track := range data.Tracks {
		for _, event := range track {
			var bpm float64
			if event.Message.GetMetaTempo(&bpm) && bpm > 0 {
				return bpm
			}
		}
	}
	return 0
}

type openNote struct {
	tick     uint64
	velocity uint8
}

// trackNotes extracts single-pitch notes from one track. Note-on events
// with velocity zero close notes the same way note-off does. Notes still
// open at end of track are closed at the track's final tick.
func trackNotes(track smf.Track, ticks smf.MetricTicks, bpm float64) []chart.Note {
	open := make(map[noteKey][]openNote)
	var notes []chart.Note
	var absTick uint64
	for _, event := range track {
		absTick += uint64(event.Delta)
		var channel, key, velocity uint8
		if event.Message.GetNoteStart(&channel, &key, &velocity) {
			id := noteKey{channel: channel, key: key}
			open[id] = append(open[id], openNote{tick: absTick, velocity: velocity})
			continue
		}
		if event.Message.GetNoteEnd(&channel, &key) {
			id := noteKey{channel: channel, key: key}
			pending := open[id]
			if len(pending) == 0 {
				continue
			}
			started := pending[len(pending)-1]
			open[id] = pending[:len(pending)-1]
			notes = append(notes, makeNote(started, absTick, key, ticks, bpm))
		}
	}
	for id, pending := range open {
		for _, started := range pending {
			notes = append(notes, makeNote(started, absTick, id.key, ticks, bpm))
		}
	}
	return notes
}

type noteKey struct {
	channel uint8
	key     uint8
}

func makeNote(started openNote, endTick uint64, key uint8, ticks smf.MetricTicks, bpm float64) chart.Note {
	durationMs := int(ticks.Duration(bpm, uint32(endTick-started.tick)).Milliseconds())
	if durationMs < 1 {
		durationMs = 1
	}
	return chart.Note{
		TimeMs:     int(ticks.Duration(bpm, uint32(started.tick)).Milliseconds()),
		DurationMs: durationMs,
		Pitch:      int(key),
		Velocity:   float64(started.velocity) / 127,
		Confidence: 1,
	}
}
