// Package pipeline sequences the import stages for one claimed job and
// owns the single error boundary between stage processors and the queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"chartsmith/internal/assets"
	"chartsmith/internal/chart"
	"chartsmith/internal/config"
	"chartsmith/internal/levels"
	"chartsmith/internal/logging"
	"chartsmith/internal/media"
	"chartsmith/internal/midiimport"
	"chartsmith/internal/queue"
	"chartsmith/internal/separation"
	"chartsmith/internal/services"
	"chartsmith/internal/transcription"
)

// failedMessage is the fixed user-facing text on any stage failure; the
// technical detail rides alongside it in the error details field.
const failedMessage = "Import failed. The file could not be processed."

// midiImporter, preprocessor, separator and transcriber mirror the concrete
// services so tests can substitute them.
type midiImporter interface {
	Import(path string, manualBPM float64) (midiimport.Result, error)
}

type preprocessor interface {
	Transcode(ctx context.Context, inputPath, stagingDir, jobID string) (string, error)
	Probe(ctx context.Context, path string) (media.Metadata, []chart.Warning)
}

type separator interface {
	Separate(ctx context.Context, inputPath, stagingDir, jobID, target string) (string, []chart.Warning)
}

type transcriber interface {
	Transcribe(ctx context.Context, audioPath, stagingDir, jobID string, preset chart.Preset, tuning transcription.Tuning) (transcription.Result, error)
}

// Orchestrator runs the stage sequence for claimed jobs and persists the
// outcome.
type Orchestrator struct {
	cfg    *config.Config
	jobs   *queue.Store
	assets *assets.Store
	levels *levels.Store

	importer midiImporter
	pre      preprocessor
	sep      separator
	trans    transcriber

	logger *slog.Logger
}

func New(cfg *config.Config, jobs *queue.Store, assetStore *assets.Store, levelStore *levels.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return NewWithServices(cfg, jobs, assetStore, levelStore,
		midiimport.New(logger),
		media.New(cfg.Tools.FFmpeg, cfg.Tools.FFprobe, logger),
		separation.New(cfg.Tools.Separate, logger),
		transcription.New(cfg.Tools.Transcribe, logger),
		logger)
}

// NewWithServices constructs an orchestrator with explicit stage services
// (used in tests).
func NewWithServices(cfg *config.Config, jobs *queue.Store, assetStore *assets.Store, levelStore *levels.Store, importer midiImporter, pre preprocessor, sep separator, trans transcriber, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		jobs:     jobs,
		assets:   assetStore,
		levels:   levelStore,
		importer: importer,
		pre:      pre,
		sep:      sep,
		trans:    trans,
		logger:   logger,
	}
}

// Process runs the full pipeline for one claimed job. Stage errors are
// caught here, exactly once: the job is marked failed with the fixed user
// message and no partial chart is persisted. The returned error reports
// the failure to the caller's log but requires no further queue action.
func (o *Orchestrator) Process(ctx context.Context, job *queue.Job) error {
	logger := o.logger.With(
		logging.String(logging.FieldJobID, job.PublicID),
		logging.String(logging.FieldSourceType, string(job.SourceType)))

	result, err := o.run(ctx, logger, job)
	if err != nil {
		logger.Error("import failed", logging.Error(err))
		if markErr := o.jobs.MarkFailed(ctx, job.ID, job.LockedBy, services.ErrorCode(err), failedMessage, err.Error()); markErr != nil {
			if errors.Is(markErr, queue.ErrClaimLost) {
				// Another worker reclaimed the job while this one was
				// stuck; its outcome stands, ours is discarded.
				logger.Warn("claim lost, failure not recorded", logging.Error(err))
				return err
			}
			return errors.Join(err, markErr)
		}
		return err
	}

	if err := o.jobs.MarkAwaitingReview(ctx, job.ID, job.LockedBy, *result); err != nil {
		if errors.Is(err, queue.ErrClaimLost) {
			logger.Warn("claim lost, result discarded")
			return err
		}
		return fmt.Errorf("finalize job: %w", err)
	}
	logger.Info("import ready for review",
		logging.String("level_id", result.LevelID),
		logging.Int("version", result.VersionNumber),
		logging.Int("events", len(result.Chart.Events)),
		logging.Int("warnings", len(result.Warnings)))
	return nil
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, job *queue.Job) (*queue.Result, error) {
	params, err := job.Params()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, string(queue.StageValidatingAssets), "decode_params", "job parameters are unreadable", err)
	}

	if job.SourceType == queue.SourceMIDI {
		return o.runMIDI(ctx, logger, job, params)
	}
	return o.runAudio(ctx, logger, job, params)
}

// checkpoint records the stage and its fixed progress value before the
// processor runs, keeping progress forward-only and observable mid-flight.
func (o *Orchestrator) checkpoint(ctx context.Context, job *queue.Job, stage queue.Stage, percent int) error {
	return o.jobs.UpdateStageProgress(ctx, job.ID, job.LockedBy, stage, percent)
}

func (o *Orchestrator) runMIDI(ctx context.Context, logger *slog.Logger, job *queue.Job, params queue.Params) (*queue.Result, error) {
	var warnings []chart.Warning

	if err := o.checkpoint(ctx, job, queue.StageValidatingAssets, 10); err != nil {
		return nil, err
	}
	source, err := o.sourceAsset(ctx, job, assets.KindMIDISource)
	if err != nil {
		return nil, err
	}

	if err := o.checkpoint(ctx, job, queue.StageBuildingChart, 75); err != nil {
		return nil, err
	}
	imported, err := o.importer.Import(source.Path, params.ManualBPM)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, imported.Warnings...)
	events := imported.Events

	if err := o.checkpoint(ctx, job, queue.StageTrackingBeats, 85); err != nil {
		return nil, err
	}
	bpm := imported.BPM
	if imported.BPMSource != chart.BPMSourceDetected {
		beats := chart.TrackBeats(events, params.ManualBPM)
		warnings = append(warnings, beats.Warnings...)
		if beats.BPM > 0 {
			bpm = beats.BPM
		}
	}

	if err := o.checkpoint(ctx, job, queue.StageQuantizing, 95); err != nil {
		return nil, err
	}
	events, quantWarnings := chart.Quantize(events, chart.ParseQuantization(params.Quantization), bpm)
	warnings = append(warnings, quantWarnings...)

	return o.persist(ctx, job, params, events, bpm, o.audioURL(ctx, job), warnings)
}

func (o *Orchestrator) runAudio(ctx context.Context, logger *slog.Logger, job *queue.Job, params queue.Params) (*queue.Result, error) {
	var warnings []chart.Warning

	if err := o.checkpoint(ctx, job, queue.StageValidatingAssets, 10); err != nil {
		return nil, err
	}
	source, err := o.sourceAsset(ctx, job, assets.KindAudioSource, assets.KindAudioStem)
	if err != nil {
		return nil, err
	}
	audioPath := source.Path

	if job.SourceType == queue.SourceFullMixAudio {
		if err := o.checkpoint(ctx, job, queue.StageSeparatingStems, 20); err != nil {
			return nil, err
		}
		if params.SelectedStem != "" {
			separated, sepWarnings := o.sep.Separate(ctx, audioPath, o.cfg.Paths.StagingDir, job.PublicID, params.SelectedStem)
			warnings = append(warnings, sepWarnings...)
			audioPath = separated
		}
	}

	if err := o.checkpoint(ctx, job, queue.StagePreprocessingAudio, 35); err != nil {
		return nil, err
	}
	wavPath, err := o.pre.Transcode(ctx, audioPath, o.cfg.Paths.StagingDir, job.PublicID)
	if err != nil {
		return nil, err
	}
	meta, probeWarnings := o.pre.Probe(ctx, wavPath)
	warnings = append(warnings, probeWarnings...)
	logger.Debug("audio prepared",
		logging.Float64("duration_sec", meta.DurationSec),
		logging.Int("sample_rate", meta.SampleRate))

	if err := o.checkpoint(ctx, job, queue.StageTranscribing, 50); err != nil {
		return nil, err
	}
	preset := chart.PresetByName(params.InstrumentPreset)
	tuning := transcription.TuningByName(params.TranscriptionTuning)
	transcribed, err := o.trans.Transcribe(ctx, wavPath, o.cfg.Paths.StagingDir, job.PublicID, preset, tuning)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, transcribed.Warnings...)
	events := transcribed.Events

	if err := o.checkpoint(ctx, job, queue.StageCleaning, 65); err != nil {
		return nil, err
	}
	cleaned := chart.Cleanup(events, chart.CleanupOptions{
		ConfidenceFloor: tuning.ConfidenceThreshold,
		Preset:          preset,
		MinDurationMs:   tuning.MinNoteLengthMs,
	})
	warnings = append(warnings, cleaned.Warnings...)
	events = cleaned.Events

	if err := o.checkpoint(ctx, job, queue.StageTrackingBeats, 75); err != nil {
		return nil, err
	}
	beats := chart.TrackBeats(events, params.ManualBPM)
	warnings = append(warnings, beats.Warnings...)

	if err := o.checkpoint(ctx, job, queue.StageQuantizing, 85); err != nil {
		return nil, err
	}
	events, quantWarnings := chart.Quantize(events, chart.ParseQuantization(params.Quantization), beats.BPM)
	warnings = append(warnings, quantWarnings...)

	return o.persist(ctx, job, params, events, beats.BPM, source.URL(), warnings)
}

// sourceAsset loads and validates the job's source asset: it must exist,
// belong to the job's owner, match one of the allowed kinds, and its bytes
// must still be on disk.
func (o *Orchestrator) sourceAsset(ctx context.Context, job *queue.Job, allowed ...assets.Kind) (*assets.Asset, error) {
	asset, err := o.assets.Get(ctx, job.SourceAssetID)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, string(queue.StageValidatingAssets), "load_asset", "source asset not found", err)
	}
	if asset.OwnerID != job.OwnerID {
		return nil, services.Wrap(services.ErrValidation, string(queue.StageValidatingAssets), "check_owner", "source asset belongs to another user", nil)
	}
	kindOK := false
	for _, kind := range allowed {
		if asset.Kind == kind {
			kindOK = true
			break
		}
	}
	if !kindOK {
		return nil, services.Wrap(services.ErrValidation, string(queue.StageValidatingAssets), "check_kind", fmt.Sprintf("asset kind %s cannot be imported as %s", asset.Kind, job.SourceType), nil)
	}
	if _, err := os.Stat(asset.Path); err != nil {
		return nil, services.Wrap(services.ErrValidation, string(queue.StageValidatingAssets), "check_bytes", "source asset bytes are missing", err)
	}
	return asset, nil
}

// audioURL resolves the optional preview audio reference for MIDI jobs.
func (o *Orchestrator) audioURL(ctx context.Context, job *queue.Job) string {
	if job.AudioAssetID == "" {
		return ""
	}
	asset, err := o.assets.Get(ctx, job.AudioAssetID)
	if err != nil {
		return ""
	}
	return asset.URL()
}

func (o *Orchestrator) persist(ctx context.Context, job *queue.Job, params queue.Params, events []chart.Event, bpm float64, audioURL string, warnings []chart.Warning) (*queue.Result, error) {
	if err := o.checkpoint(ctx, job, queue.StagePersisting, 95); err != nil {
		return nil, err
	}
	if err := chart.Validate(events); err != nil {
		return nil, services.Wrap(services.ErrValidation, string(queue.StagePersisting), "validate_chart", "produced chart is structurally invalid", err)
	}

	built := chart.Chart{
		Title:    params.Title,
		AudioURL: audioURL,
		BPMHint:  bpm,
		Events:   events,
	}
	version, err := o.levels.SaveDraft(ctx, job.OwnerID, "", params.Title, built)
	if err != nil {
		return nil, fmt.Errorf("persist draft version: %w", err)
	}
	return &queue.Result{
		Chart:         built,
		Warnings:      warnings,
		LevelID:       version.LevelID,
		VersionNumber: version.VersionNumber,
	}, nil
}
