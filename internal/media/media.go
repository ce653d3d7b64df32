// Package media prepares uploaded audio for transcription: a normalizing
// ffmpeg transcode plus ffprobe metadata extraction.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"chartsmith/internal/chart"
	"chartsmith/internal/logging"
	"chartsmith/internal/services"
)

// Metadata describes the probed audio container. Zero fields mean the probe
// could not determine the value.
type Metadata struct {
	DurationSec float64
	SampleRate  int
	Channels    int
}

// Preprocessor transcodes source audio to the canonical analysis format,
// mono 44.1 kHz signed 16-bit WAV.
type Preprocessor struct {
	ffmpeg  string
	ffprobe string
	run     services.CommandRunner
	logger  *slog.Logger
}

func New(ffmpeg, ffprobe string, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Preprocessor{
		ffmpeg:  strings.TrimSpace(ffmpeg),
		ffprobe: strings.TrimSpace(ffprobe),
		run:     services.RunCommand,
		logger:  logger,
	}
}

// SetRunner substitutes the command runner. Tests only.
func (p *Preprocessor) SetRunner(run services.CommandRunner) { p.run = run }

// Transcode converts the input into a per-job uniquely named WAV under
// stagingDir and returns its path. Transcode failure is fatal and the
// message distinguishes a missing tool from a crashed one.
func (p *Preprocessor) Transcode(ctx context.Context, inputPath, stagingDir, jobID string) (string, error) {
	outputPath := filepath.Join(stagingDir, fmt.Sprintf("%s-%s.wav", jobID, uuid.NewString()[:8]))
	args := []string{
		"-v", "error",
		"-y",
		"-i", inputPath,
		"-ac", "1",
		"-ar", "44100",
		"-c:a", "pcm_s16le",
		outputPath,
	}
	if _, err := p.run(ctx, p.ffmpeg, args...); err != nil {
		message := "audio transcode tool crashed"
		if services.BinaryMissing(p.ffmpeg) {
			message = "audio transcode tool is not installed"
		}
		return "", services.Wrap(services.ErrExternalTool, "preprocessing_audio", "transcode", message, err)
	}
	p.logger.Debug("audio transcoded",
		logging.String("input", inputPath),
		logging.String("output", outputPath))
	return outputPath, nil
}

type probePayload struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe extracts duration, sample rate and channel count. Failure is never
// fatal: the pipeline continues with partial metadata plus a warning.
func (p *Preprocessor) Probe(ctx context.Context, path string) (Metadata, []chart.Warning) {
	output, err := p.run(ctx, p.ffprobe,
		"-v", "error",
		"-hide_banner",
		"-show_format", "-show_streams",
		"-of", "json",
		"--", path)
	if err != nil {
		p.logger.Warn("audio metadata probe failed", logging.String("path", path), logging.Error(err))
		return Metadata{}, []chart.Warning{{
			Code:    "metadata_probe_failed",
			Message: "audio metadata could not be read; continuing without it",
		}}
	}

	var payload probePayload
	if err := json.Unmarshal(output, &payload); err != nil {
		return Metadata{}, []chart.Warning{{
			Code:    "metadata_probe_failed",
			Message: "audio metadata was unreadable; continuing without it",
		}}
	}

	meta := Metadata{DurationSec: parseFloat(payload.Format.Duration)}
	for _, stream := range payload.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		meta.SampleRate = int(parseFloat(stream.SampleRate))
		meta.Channels = stream.Channels
		break
	}
	return meta, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	return parsed
}
