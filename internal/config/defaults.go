package config

const (
	defaultUploadDir             = "~/.local/share/slipstream/uploads"
	defaultWorkDir               = "~/.local/share/slipstream/work"
	defaultLogDir                = "~/.local/share/slipstream/logs"
	defaultRetentionDays         = 7
	defaultStoreSweepSeconds     = 60
	defaultTranscodeConcurrency  = 2
	defaultUploadConcurrency     = 5
	defaultUploadFanout          = 5
	defaultMaxAttempts           = 2
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultPreset                = "fast"
	defaultCRF                   = 23
	defaultSegmentTime           = 10
	defaultStorageBucket         = "videos"
	defaultNotifyTimeoutSeconds  = 5
	defaultStaleThresholdMinutes = 15
	defaultSweepIntervalMinutes  = 10
	defaultLogLevel              = "info"
	defaultLogFormat             = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir: defaultUploadDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
		},
		Store: Store{
			RetentionDays:        defaultRetentionDays,
			SweepIntervalSeconds: defaultStoreSweepSeconds,
		},
		Queue: Queue{
			TranscodeConcurrency: defaultTranscodeConcurrency,
			UploadConcurrency:    defaultUploadConcurrency,
			UploadFanout:         defaultUploadFanout,
			MaxAttempts:          defaultMaxAttempts,
		},
		Transcode: Transcode{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			Preset:        defaultPreset,
			CRF:           defaultCRF,
			SegmentTime:   defaultSegmentTime,
			AllowedTypes:  []string{"video/mp4", "video/quicktime", "video/webm"},
		},
		Storage: Storage{
			Bucket: defaultStorageBucket,
		},
		Notify: Notify{
			TimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Recovery: Recovery{
			StaleThresholdMinutes: defaultStaleThresholdMinutes,
			SweepIntervalMinutes:  defaultSweepIntervalMinutes,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
