package deps

import (
	"runtime"
	"strings"
	"sync"
	"time"

	"chartsmith/internal/config"
)

// Capability summarizes whether the audio import path can run at all.
type Capability struct {
	Available       bool
	Environment     string
	Message         string
	MissingCommands []string
	CheckedAt       time.Time
}

// Probe answers capability queries with a short-lived cache. Spawning
// LookPath scans on every submission is cheap, but callers hit this on the
// request path, so results are reused within the TTL.
type Probe struct {
	requirements []Requirement
	ttl          time.Duration

	mu     sync.Mutex
	cached *Capability
	now    func() time.Time
}

// NewProbe builds a probe over the configured tool commands. The transcode
// and transcription tools are required for any audio import; the stem
// separator is optional because separation degrades gracefully.
func NewProbe(cfg *config.Config) *Probe {
	ttl := time.Duration(cfg.Workflow.CapabilityCacheTTL) * time.Second
	return &Probe{
		requirements: []Requirement{
			{Name: "FFmpeg", Command: cfg.Tools.FFmpeg, Description: "audio transcoding"},
			{Name: "FFprobe", Command: cfg.Tools.FFprobe, Description: "audio metadata extraction"},
			{Name: "Transcriber", Command: cfg.Tools.Transcribe, Description: "pitch transcription"},
			{Name: "Separator", Command: cfg.Tools.Separate, Description: "stem separation", Optional: true},
		},
		ttl: ttl,
		now: time.Now,
	}
}

// Requirements returns the probe's requirement list for status displays.
func (p *Probe) Requirements() []Requirement {
	out := make([]Requirement, len(p.requirements))
	copy(out, p.requirements)
	return out
}

// Capability reports whether audio imports can run. Results are cached for
// the configured TTL; forceRefresh bypasses the cache.
func (p *Probe) Capability(forceRefresh bool) Capability {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !forceRefresh && p.cached != nil && p.now().Sub(p.cached.CheckedAt) < p.ttl {
		return *p.cached
	}

	statuses := CheckBinaries(p.requirements)
	capability := Capability{
		Available:   true,
		Environment: runtime.GOOS,
		CheckedAt:   p.now(),
	}
	for _, status := range statuses {
		if status.Available || status.Optional {
			continue
		}
		capability.Available = false
		capability.MissingCommands = append(capability.MissingCommands, status.Command)
	}
	if capability.Available {
		capability.Message = "audio import tools available"
	} else {
		capability.Message = "audio import unavailable: missing " + strings.Join(capability.MissingCommands, ", ")
	}

	p.cached = &capability
	return capability
}

// Statuses runs a full (uncached) binary scan for status displays.
func (p *Probe) Statuses() []Status {
	return CheckBinaries(p.requirements)
}
