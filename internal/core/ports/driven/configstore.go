package driven

import "time"

// ConfigStore provides access to application configuration.
// Implementations handle persistence and type conversion.
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	Get(key string) (any, bool)

	// GetString retrieves a string configuration value. Returns empty
	// string if the key doesn't exist or isn't a string.
	GetString(key string) string

	// GetInt retrieves an integer configuration value. Returns 0 if the
	// key doesn't exist or isn't an integer.
	GetInt(key string) int

	// GetBool retrieves a boolean configuration value.
	GetBool(key string) bool

	// Set stores a configuration value. The value is persisted immediately.
	Set(key string, value any) error

	// Save persists the current configuration to storage.
	Save() error

	// Load reads configuration from storage.
	Load() error

	// Path returns the configuration file path.
	Path() string
}

// Configuration keys read by the service.
const (
	ConfigServerPort      = "server.port"
	ConfigWebhookSecret   = "server.webhook_secret"
	ConfigSyncInterval    = "sync.interval_seconds"
	ConfigSyncMinInterval = "sync.min_repo_interval_seconds"
	ConfigSyncWorkers     = "sync.workers"
	ConfigAnthropicKey    = "anthropic.api_key"
	ConfigAnthropicModel  = "anthropic.model"
	ConfigDataDir         = "storage.data_dir"
)

// Settings is the typed view of the configuration the service reads at
// startup, with defaults filled in.
type Settings struct {
	ServerPort      int
	WebhookSecret   string
	SyncInterval    time.Duration
	SyncMinInterval time.Duration
	SyncWorkers     int
	AnthropicKey    string
	AnthropicModel  string
	DataDir         string
}

// LoadSettings reads the typed settings from a config store, applying
// defaults for everything unset.
func LoadSettings(store ConfigStore) Settings {
	s := Settings{
		ServerPort:      8080,
		SyncInterval:    5 * time.Minute,
		SyncMinInterval: 2 * time.Minute,
		SyncWorkers:     4,
	}

	if port := store.GetInt(ConfigServerPort); port > 0 {
		s.ServerPort = port
	}
	if secs := store.GetInt(ConfigSyncInterval); secs > 0 {
		s.SyncInterval = time.Duration(secs) * time.Second
	}
	if secs := store.GetInt(ConfigSyncMinInterval); secs > 0 {
		s.SyncMinInterval = time.Duration(secs) * time.Second
	}
	if workers := store.GetInt(ConfigSyncWorkers); workers > 0 {
		s.SyncWorkers = workers
	}
	s.WebhookSecret = store.GetString(ConfigWebhookSecret)
	s.AnthropicKey = store.GetString(ConfigAnthropicKey)
	s.AnthropicModel = store.GetString(ConfigAnthropicModel)
	s.DataDir = store.GetString(ConfigDataDir)
	return s
}
