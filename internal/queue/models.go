package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chartsmith/internal/chart"
)

// SourceType identifies what kind of upload a job imports.
type SourceType string

const (
	SourceMIDI          SourceType = "midi"
	SourceIsolatedAudio SourceType = "isolated_audio"
	SourceFullMixAudio  SourceType = "full_mix_audio"
)

// IsAudio reports whether the source requires the audio processing path.
func (s SourceType) IsAudio() bool {
	return s == SourceIsolatedAudio || s == SourceFullMixAudio
}

// ParseSourceType converts a string into a known SourceType.
func ParseSourceType(value string) (SourceType, bool) {
	normalized := SourceType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case SourceMIDI, SourceIsolatedAudio, SourceFullMixAudio:
		return normalized, true
	}
	return "", false
}

// Status represents the lifecycle of an import job.
type Status string

const (
	StatusQueued         Status = "queued"
	StatusProcessing     Status = "processing"
	StatusAwaitingReview Status = "awaiting_review"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// IsTerminal reports whether a job in this status will never move again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAwaitingReview, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusQueued, StatusProcessing, StatusAwaitingReview, StatusCompleted, StatusFailed, StatusCancelled:
		return normalized, true
	}
	return "", false
}

// Stage tracks pipeline position for observability while a job processes.
type Stage string

const (
	StageQueued             Stage = "queued"
	StageValidatingAssets   Stage = "validating_assets"
	StageSeparatingStems    Stage = "separating_stems"
	StagePreprocessingAudio Stage = "preprocessing_audio"
	StageTranscribing       Stage = "transcribing"
	StageCleaning           Stage = "cleaning"
	StageTrackingBeats      Stage = "tracking_beats"
	StageQuantizing         Stage = "quantizing"
	StageBuildingChart      Stage = "building_chart"
	StagePersisting         Stage = "persisting"
	StageComplete           Stage = "complete"
	StageFailed             Stage = "failed"
)

// Params captures the caller-supplied import options, stored as JSON.
type Params struct {
	Title               string  `json:"title"`
	ManualBPM           float64 `json:"manualBpm,omitempty"`
	Quantization        string  `json:"quantization,omitempty"`
	InstrumentPreset    string  `json:"instrumentPreset,omitempty"`
	TranscriptionTuning string  `json:"transcriptionTuning,omitempty"`
	SelectedStem        string  `json:"selectedStem,omitempty"`
}

// Result is the successful outcome persisted on the job, stored as JSON.
type Result struct {
	Chart         chart.Chart     `json:"chart"`
	Warnings      []chart.Warning `json:"warnings,omitempty"`
	LevelID       string          `json:"levelId"`
	VersionNumber int             `json:"versionNumber"`
}

// Job represents an import job persisted in SQLite.
type Job struct {
	ID              int64
	PublicID        string
	OwnerID         string
	SourceType      SourceType
	SourceAssetID   string
	AudioAssetID    string
	Status          Status
	Stage           Stage
	ProgressPercent int
	ParamsJSON      string
	ResultJSON      string
	ErrorCode       string
	ErrorMessage    string
	ErrorDetails    string
	Attempts        int
	MaxAttempts     int
	LockedBy        string
	LockedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Params decodes the stored import options.
func (j *Job) Params() (Params, error) {
	var params Params
	if strings.TrimSpace(j.ParamsJSON) == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(j.ParamsJSON), &params); err != nil {
		return params, fmt.Errorf("decode job params: %w", err)
	}
	return params, nil
}

// Result decodes the stored outcome, if any.
func (j *Job) Result() (*Result, error) {
	if strings.TrimSpace(j.ResultJSON) == "" {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal([]byte(j.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("decode job result: %w", err)
	}
	return &result, nil
}

// LockFreshAt reports whether the job's lock is still fresh relative to the
// provided staleness cutoff.
func (j *Job) LockFreshAt(cutoff time.Time) bool {
	return j.LockedAt != nil && j.LockedAt.After(cutoff)
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total          int
	Queued         int
	Processing     int
	AwaitingReview int
	Failed         int
	Completed      int
}
