package config

const (
	defaultBaseDir            = "~/.local/share/planet"
	defaultLogDir             = "~/.local/share/planet/logs"
	defaultAPIBind            = "127.0.0.1:7587"
	defaultAPIPortMin         = 5981
	defaultAPIPortMax         = 5991
	defaultGatewayPortMin     = 18181
	defaultGatewayPortMax     = 18191
	defaultSwarmPort          = 4001
	defaultMinRepoEntries     = 6
	defaultLaunchRecheckDelay = 3
	defaultRelaunchGrace      = 3
	defaultControlTimeout     = 5
	defaultPortProbeTimeout   = 1
	defaultPinTimeout         = 120
	defaultPublishTimeout     = 600
	defaultGatewayTimeout     = 15
	defaultPublishInterval    = 600
	defaultUpdateInterval     = 300
	defaultStatusInterval     = 30
	defaultStatusRetryDelay   = 2
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir: defaultBaseDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		IPFS: IPFS{
			APIPortMin:         defaultAPIPortMin,
			APIPortMax:         defaultAPIPortMax,
			GatewayPortMin:     defaultGatewayPortMin,
			GatewayPortMax:     defaultGatewayPortMax,
			SwarmPort:          defaultSwarmPort,
			MinRepoEntries:     defaultMinRepoEntries,
			LaunchRecheckDelay: defaultLaunchRecheckDelay,
			RelaunchGrace:      defaultRelaunchGrace,
			WatchRepoConfig:    true,
			AutoLaunch:         true,
		},
		Timeouts: Timeouts{
			Control:   defaultControlTimeout,
			PortProbe: defaultPortProbeTimeout,
			Pin:       defaultPinTimeout,
			Publish:   defaultPublishTimeout,
			Gateway:   defaultGatewayTimeout,
		},
		Scheduler: Scheduler{
			PublishInterval:  defaultPublishInterval,
			UpdateInterval:   defaultUpdateInterval,
			StatusInterval:   defaultStatusInterval,
			StatusRetryDelay: defaultStatusRetryDelay,
			TrackRepoSize:    true,
			TrackBandwidth:   true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Publish:        false,
			NewArticles:    true,
			Errors:         true,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
