package config

const (
	defaultStagingDir              = "~/.local/share/echowatch/staging"
	defaultStateDir                = "~/.local/share/echowatch"
	defaultLogDir                  = "~/.local/share/echowatch/logs"
	defaultLogRetentionDays        = 30
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultSourceUserAgent         = "EchoWatch/dev"
	defaultSourcePollWindow        = 30
	defaultSourcePollInterval      = 5
	defaultSourceRequestTimeout    = 15
	defaultSourceDownloadsPerMin   = 30
	defaultFFmpegBinary            = "ffmpeg"
	defaultWhisperXModel           = "large-v3-turbo"
	defaultAudioLanguage           = "en"
	defaultProcessedRetentionHours = 48
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "google/gemini-3-flash-preview"
	defaultLLMReferer              = "https://github.com/echowatch/echowatch"
	defaultLLMTitle                = "EchoWatch Analyzer"
	defaultLLMTimeoutSeconds       = 60
	defaultBatchIntervalSeconds    = 300
	defaultMaxBatchSize            = 25
	defaultSeverityThreshold       = 7
	defaultNotifyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Source: Source{
			UserAgent:           defaultSourceUserAgent,
			PollWindowSeconds:   defaultSourcePollWindow,
			PollIntervalSeconds: defaultSourcePollInterval,
			RequestTimeout:      defaultSourceRequestTimeout,
			DownloadsPerMinute:  defaultSourceDownloadsPerMin,
		},
		Audio: Audio{
			FFmpegBinary:            defaultFFmpegBinary,
			WhisperXModel:           defaultWhisperXModel,
			Language:                defaultAudioLanguage,
			ProcessedRetentionHours: defaultProcessedRetentionHours,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Analysis: Analysis{
			BatchIntervalSeconds: defaultBatchIntervalSeconds,
			MaxBatchSize:         defaultMaxBatchSize,
			SeverityThreshold:    defaultSeverityThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Alerts:         true,
			Errors:         true,
		},
		Workflow: Workflow{
			IngestSuccessWait:  5,
			IngestFailureWait:  10,
			ConvertSuccessWait: 10,
			ConvertFailureWait: 15,
			AnalyzeSuccessWait: 15,
			AnalyzeFailureWait: 20,
			ReportInterval:     300,
			JoinTimeout:        10,
			LivenessPoll:       1,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
