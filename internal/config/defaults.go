package config

const (
	defaultDataDir           = "~/.local/share/gamecatalog"
	defaultDatasetFile       = "games_full.json"
	defaultOverridesFile     = "bgg_ids.json"
	defaultVersionImageCache = "cache/version_images.json"
	defaultHistoryDBFile     = "history.db"
	defaultLogDirName        = "logs"
	defaultPrimaryHost       = "https://boardgamegeek.com/xmlapi2"
	defaultSecondaryHost     = "https://api.geekdo.com/xmlapi2"
	defaultUserAgent         = "gamecatalog/dev"
	defaultRequestTimeout    = 60
	defaultCommentsPageSize  = 20
	defaultCommentsTop       = 3
	defaultBatchSize         = 20
	maxBatchSize             = 20
	defaultPacingIntervalMS  = 3000
	defaultPacingJitterMS    = 1000
	defaultMaxRetries        = 4
	defaultBaseDelayMS       = 2000
	defaultMultiplier        = 2.0
	defaultMaxDelayMS        = 16000
	defaultQueuedDelayMS     = 2000
	defaultMaxQueuedPolls    = 10
	defaultFixedDelayMS      = 1000
	defaultRetryJitterMS     = 500
	defaultMinYield          = 1
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	envAPIToken              = "BGG_API_TOKEN"
	envMinYield              = "BUILD_MIN_ITEMS"
	envDataDir               = "GAMECATALOG_DATA_DIR"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		BGG: BGG{
			Hosts:                []string{defaultPrimaryHost, defaultSecondaryHost},
			UserAgent:            defaultUserAgent,
			RequestTimeout:       defaultRequestTimeout,
			CommentsPageSize:     defaultCommentsPageSize,
			CommentsTop:          defaultCommentsTop,
			ResolveVersionImages: true,
		},
		Fetch: Fetch{
			BatchSize:        defaultBatchSize,
			PacingIntervalMS: defaultPacingIntervalMS,
			PacingJitterMS:   defaultPacingJitterMS,
		},
		Retry: Retry{
			MaxRetries:     defaultMaxRetries,
			BaseDelayMS:    defaultBaseDelayMS,
			Multiplier:     defaultMultiplier,
			MaxDelayMS:     defaultMaxDelayMS,
			QueuedDelayMS:  defaultQueuedDelayMS,
			MaxQueuedPolls: defaultMaxQueuedPolls,
			FixedDelayMS:   defaultFixedDelayMS,
			JitterMS:       defaultRetryJitterMS,
		},
		Guard: Guard{
			MinYield:       defaultMinYield,
			BackupPrevious: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
