package config

const (
	defaultDataDir             = "~/.local/share/joddb"
	defaultLogDir              = "~/.local/share/joddb/logs"
	defaultAPIBind             = "127.0.0.1:7410"
	defaultWorkdaySeconds      = 28800
	defaultEfficiencyThreshold = 75.0
	defaultReworkThreshold     = 3
	defaultHighAfterHours      = 24
	defaultLowBeforeHours      = 2
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Pipeline: Pipeline{
			TesterStage:         true,
			WorkdaySeconds:      defaultWorkdaySeconds,
			EfficiencyThreshold: defaultEfficiencyThreshold,
			ReworkThreshold:     defaultReworkThreshold,
		},
		ReviewQueue: ReviewQueue{
			HighAfterHours: defaultHighAfterHours,
			LowBeforeHours: defaultLowBeforeHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Rejections:     true,
			Completions:    true,
			ReviewQueue:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
