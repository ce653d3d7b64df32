// Package separation isolates a single stem from full-mix audio. The
// contract is graceful degradation: on any failure the original audio path
// is returned with a warning, never an error, so downstream stages always
// receive playable input.
package separation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chartsmith/internal/chart"
	"chartsmith/internal/logging"
	"chartsmith/internal/services"
)

const model = "htdemucs"

// stemNames maps requested targets onto the separator model's stem outputs.
var stemNames = map[string]string{
	"vocals": "vocals",
	"bass":   "bass",
	"drums":  "drums",
	"other":  "other",
}

// Separator shells out to demucs for two-stem isolation.
type Separator struct {
	binary string
	run    services.CommandRunner
	logger *slog.Logger
}

func New(binary string, logger *slog.Logger) *Separator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Separator{binary: strings.TrimSpace(binary), run: services.RunCommand, logger: logger}
}

// SetRunner substitutes the command runner. Tests only.
func (s *Separator) SetRunner(run services.CommandRunner) { s.run = run }

// Separate isolates target from the audio at inputPath, writing under
// stagingDir. It always returns a usable audio path: when separation cannot
// run or fails, that path is inputPath and the warnings say why.
func (s *Separator) Separate(ctx context.Context, inputPath, stagingDir, jobID, target string) (string, []chart.Warning) {
	stem, ok := stemNames[strings.ToLower(strings.TrimSpace(target))]
	if !ok {
		return inputPath, []chart.Warning{{
			Code:    "stem_unmapped",
			Message: fmt.Sprintf("stem %q is not separable; using the full mix", target),
		}}
	}
	if services.BinaryMissing(s.binary) {
		return inputPath, []chart.Warning{{
			Code:    "separation_unavailable",
			Message: "stem separation tool is not installed; using the full mix",
		}}
	}

	outDir := filepath.Join(stagingDir, fmt.Sprintf("%s-sep-%s", jobID, uuid.NewString()[:8]))
	args := []string{
		"-n", model,
		"--two-stems", stem,
		"-o", outDir,
		inputPath,
	}
	if _, err := s.run(ctx, s.binary, args...); err != nil {
		s.logger.Warn("stem separation failed",
			logging.String("stem", stem),
			logging.Error(err))
		return inputPath, []chart.Warning{{
			Code:    "separation_failed",
			Message: "stem separation failed; using the full mix",
		}}
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	stemPath := filepath.Join(outDir, model, base, stem+".wav")
	if _, err := os.Stat(stemPath); err != nil {
		return inputPath, []chart.Warning{{
			Code:    "separation_failed",
			Message: "stem separation produced no output; using the full mix",
		}}
	}
	s.logger.Debug("stem separated",
		logging.String("stem", stem),
		logging.String("path", stemPath))
	return stemPath, nil
}
