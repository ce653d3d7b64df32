package config

const (
	defaultDataDir            = "~/.local/share/chartsmith"
	defaultStagingDir         = "~/.local/share/chartsmith/staging"
	defaultAssetDir           = "~/.local/share/chartsmith/assets"
	defaultLogDir             = "~/.local/share/chartsmith/logs"
	defaultAPIBind            = "127.0.0.1:7512"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultTranscribeBinary   = "basic-pitch"
	defaultSeparateBinary     = "demucs"
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultStaleLockSeconds   = 300
	defaultMaxAttempts        = 3
	defaultCapabilityCacheTTL = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			AssetDir:   defaultAssetDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Tools: Tools{
			FFmpeg:     defaultFFmpegBinary,
			FFprobe:    defaultFFprobeBinary,
			Transcribe: defaultTranscribeBinary,
			Separate:   defaultSeparateBinary,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			StaleLockSeconds:   defaultStaleLockSeconds,
			MaxAttempts:        defaultMaxAttempts,
			CapabilityCacheTTL: defaultCapabilityCacheTTL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
