// Package transcription turns prepared audio into chart events by shelling
// out to a pitch-transcription tool, then gating and filtering its raw
// note stream.
package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"chartsmith/internal/chart"
	"chartsmith/internal/logging"
	"chartsmith/internal/services"
)

// Result is the transcriber's chord-grouped output.
type Result struct {
	Events   []chart.Event
	Warnings []chart.Warning
	Stats    FilterStats
}

// Transcriber invokes the external transcription tool and post-processes
// its note events.
type Transcriber struct {
	binary string
	run    services.CommandRunner
	logger *slog.Logger
}

func New(binary string, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcriber{binary: strings.TrimSpace(binary), run: services.RunCommand, logger: logger}
}

// SetRunner substitutes the command runner. Tests only.
func (t *Transcriber) SetRunner(run services.CommandRunner) { t.run = run }

// Transcribe runs the tool against audioPath constrained by the preset's
// frequency bounds and the tuning's minimum note length, then applies the
// activity gate and filter chain. Tool failure is fatal; everything past
// it degrades to warnings.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, stagingDir, jobID string, preset chart.Preset, tuning Tuning) (Result, error) {
	outDir := filepath.Join(stagingDir, fmt.Sprintf("%s-notes-%s", jobID, uuid.NewString()[:8]))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "transcribing", "prepare_output", "could not create transcription output directory", err)
	}

	args := []string{
		outDir,
		audioPath,
		"--save-note-events",
		"--minimum-note-length", strconv.Itoa(tuning.MinNoteLengthMs),
		"--minimum-frequency", fmt.Sprintf("%.2f", preset.MinFrequencyHz()),
		"--maximum-frequency", fmt.Sprintf("%.2f", preset.MaxFrequencyHz()),
	}
	if _, err := t.run(ctx, t.binary, args...); err != nil {
		message := "pitch transcription tool crashed"
		if services.BinaryMissing(t.binary) {
			message = "pitch transcription tool is not installed"
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "transcribing", "transcribe", message, err)
	}

	var warnings []chart.Warning
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	notes, err := parseNoteCSV(filepath.Join(outDir, base+"_basic_pitch.csv"))
	if err != nil {
		notes, err = parseNoteMIDI(filepath.Join(outDir, base+"_basic_pitch.mid"))
		if err != nil {
			return Result{}, services.Wrap(services.ErrExternalTool, "transcribing", "parse_output", "transcription produced no readable note events", err)
		}
		warnings = append(warnings, chart.Warning{
			Code:    "csv_fallback_midi",
			Message: "note event CSV was unreadable; used the MIDI output instead",
		})
	}

	firstActivityMs := 0
	if ms, err := FirstActivityMs(audioPath); err != nil {
		warnings = append(warnings, chart.Warning{
			Code:    "activity_gate_skipped",
			Message: "audio could not be decoded for onset detection; intro gate disabled",
		})
	} else {
		firstActivityMs = ms
	}

	filtered, stats := applyFilters(notes, tuning, preset, firstActivityMs)
	events := chart.GroupChords(filtered)
	if len(events) == 0 {
		warnings = append(warnings, chart.Warning{
			Code:    "transcription_empty",
			Message: "no notes survived transcription filtering",
			Count:   len(notes),
		})
	}

	t.logger.Debug("transcription complete",
		logging.Int("raw_notes", len(notes)),
		logging.Int("events", len(events)),
		logging.Int("dropped_low_confidence", stats.DroppedLowConfidence),
		logging.Int("dropped_out_of_range", stats.DroppedOutOfRange),
		logging.Int("dropped_pre_activity", stats.DroppedPreActivity),
		logging.Int("merged_same_pitch", stats.MergedSamePitch),
		logging.Int("dropped_short", stats.DroppedShort))
	return Result{Events: events, Warnings: warnings, Stats: stats}, nil
}
