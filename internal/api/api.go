// Package api is the service facade for job submission and status reads.
// All admission checks happen here, before any job row exists.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chartsmith/internal/assets"
	"chartsmith/internal/config"
	"chartsmith/internal/deps"
	"chartsmith/internal/logging"
	"chartsmith/internal/queue"
	"chartsmith/internal/services"
)

// SubmitRequest carries the caller-supplied import options.
type SubmitRequest struct {
	SourceType          string  `json:"sourceType,omitempty"`
	SourceAssetID       string  `json:"sourceAssetId"`
	AudioAssetID        string  `json:"audioAssetId,omitempty"`
	Title               string  `json:"title"`
	ManualBPM           float64 `json:"manualBpm,omitempty"`
	Quantization        string  `json:"quantization,omitempty"`
	InstrumentPreset    string  `json:"instrumentPreset,omitempty"`
	TranscriptionTuning string  `json:"transcriptionTuning,omitempty"`
	SelectedStem        string  `json:"selectedStem,omitempty"`
}

// JobError is the client-facing failure detail.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// JobStatus is the owner-scoped view of one import job.
type JobStatus struct {
	ID              string        `json:"id"`
	Status          string        `json:"status"`
	Stage           string        `json:"stage"`
	ProgressPercent int           `json:"progressPercent"`
	SourceType      string        `json:"sourceType"`
	LevelID         string        `json:"levelId,omitempty"`
	Result          *queue.Result `json:"result,omitempty"`
	Error           *JobError     `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Service validates submissions and reads job state.
type Service struct {
	cfg    *config.Config
	jobs   *queue.Store
	assets *assets.Store
	probe  *deps.Probe
	logger *slog.Logger
	// kick wakes the workflow poll loop after a submission.
	kick func()
}

func NewService(cfg *config.Config, jobs *queue.Store, assetStore *assets.Store, probe *deps.Probe, kick func(), logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if kick == nil {
		kick = func() {}
	}
	return &Service{
		cfg:    cfg,
		jobs:   jobs,
		assets: assetStore,
		probe:  probe,
		logger: logging.NewComponentLogger(logger, "api"),
		kick:   kick,
	}
}

// Submit validates the request and enqueues an import job. Audio
// submissions are rejected up front when the capability probe reports the
// external tools unavailable, so no doomed job is ever enqueued.
func (s *Service) Submit(ctx context.Context, ownerID string, req SubmitRequest) (*queue.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, services.Wrap(services.ErrValidation, "submit", "check_owner", "owner is required", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, services.Wrap(services.ErrValidation, "submit", "check_title", "title is required", nil)
	}
	if strings.TrimSpace(req.SourceAssetID) == "" {
		return nil, services.Wrap(services.ErrValidation, "submit", "check_asset", "sourceAssetId is required", nil)
	}

	asset, err := s.assets.Get(ctx, req.SourceAssetID)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "submit", "load_asset", "source asset not found", err)
	}
	if asset.OwnerID != ownerID {
		return nil, services.Wrap(services.ErrValidation, "submit", "load_asset", "source asset not found", nil)
	}

	sourceType, err := resolveSourceType(req.SourceType, asset.Kind)
	if err != nil {
		return nil, err
	}

	if req.AudioAssetID != "" {
		audio, err := s.assets.Get(ctx, req.AudioAssetID)
		if err != nil || audio.OwnerID != ownerID {
			return nil, services.Wrap(services.ErrValidation, "submit", "load_audio_asset", "audio asset not found", err)
		}
	}

	if sourceType.IsAudio() {
		capability := s.probe.Capability(false)
		if !capability.Available {
			detail := strings.Join(capability.MissingCommands, ", ")
			return nil, services.Wrap(services.ErrUnavailable, "submit", "check_capability",
				fmt.Sprintf("audio import is unavailable: missing %s", detail), nil)
		}
	}

	job, err := s.jobs.Enqueue(ctx, queue.NewJob{
		OwnerID:       ownerID,
		SourceType:    sourceType,
		SourceAssetID: req.SourceAssetID,
		AudioAssetID:  req.AudioAssetID,
		MaxAttempts:   s.cfg.Workflow.MaxAttempts,
		Params: queue.Params{
			Title:               strings.TrimSpace(req.Title),
			ManualBPM:           req.ManualBPM,
			Quantization:        req.Quantization,
			InstrumentPreset:    req.InstrumentPreset,
			TranscriptionTuning: req.TranscriptionTuning,
			SelectedStem:        req.SelectedStem,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.PublicID),
		logging.String(logging.FieldSourceType, string(sourceType)))
	s.kick()
	return job, nil
}

// GetStatus returns the owner-scoped status view for one job.
func (s *Service) GetStatus(ctx context.Context, ownerID, jobID string) (*JobStatus, error) {
	job, err := s.jobs.GetByPublicID(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "status", "load_job", "job not found", nil)
	}
	return statusView(job)
}

func statusView(job *queue.Job) (*JobStatus, error) {
	result, err := job.Result()
	if err != nil {
		return nil, err
	}
	view := &JobStatus{
		ID:              job.PublicID,
		Status:          string(job.Status),
		Stage:           string(job.Stage),
		ProgressPercent: job.ProgressPercent,
		SourceType:      string(job.SourceType),
		Result:          result,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if result != nil {
		view.LevelID = result.LevelID
	}
	if job.ErrorCode != "" || job.ErrorMessage != "" {
		view.Error = &JobError{Code: job.ErrorCode, Message: job.ErrorMessage, Details: job.ErrorDetails}
	}
	return view, nil
}

// resolveSourceType validates an explicit source type against the asset
// kind, or infers one when the request leaves it out.
func resolveSourceType(requested string, kind assets.Kind) (queue.SourceType, error) {
	inferred, ok := inferSourceType(kind)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "submit", "check_kind",
			fmt.Sprintf("asset kind %s cannot be imported", kind), nil)
	}
	if strings.TrimSpace(requested) == "" {
		return inferred, nil
	}

	explicit, ok := queue.ParseSourceType(requested)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "submit", "check_source_type",
			fmt.Sprintf("unknown source type %q", requested), nil)
	}
	if explicit.IsAudio() != inferred.IsAudio() {
		return "", services.Wrap(services.ErrValidation, "submit", "check_source_type",
			fmt.Sprintf("source type %s does not match asset kind %s", explicit, kind), nil)
	}
	return explicit, nil
}

func inferSourceType(kind assets.Kind) (queue.SourceType, bool) {
	switch kind {
	case assets.KindMIDISource:
		return queue.SourceMIDI, true
	case assets.KindAudioStem:
		return queue.SourceIsolatedAudio, true
	case assets.KindAudioSource:
		return queue.SourceFullMixAudio, true
	}
	return "", false
}
