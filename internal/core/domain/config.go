package domain

// DefaultFlushThreshold is the entry count past which a round start flushes the whole cache.
const DefaultFlushThreshold = 50000

// DefaultTransientField is the field name that carries native addresses in kernel payloads.
const DefaultTransientField = "ptr"

// Config is the static configuration of a bridge.
type Config struct {
	// Kernel selects the kernel backend and its handle capability implementation.
	Kernel    string
	Cache     CacheConfig
	LogLevel  LogLevel
	Telemetry bool
	Journal   JournalConfig
	// WorkerEnv is merged into the environment of spawned worker processes.
	WorkerEnv map[string]string
}

// CacheConfig configures the object cache.
type CacheConfig struct {
	FlushThreshold  int
	TransientFields []string
}

// JournalDriver selects the key journal backend.
type JournalDriver string

const (
	// JournalNone disables the key journal.
	JournalNone JournalDriver = "none"
	// JournalJSON stores the journal in a flat JSON file.
	JournalJSON JournalDriver = "json"
	// JournalSQLite stores the journal in a SQLite database.
	JournalSQLite JournalDriver = "sqlite"
)

// JournalConfig configures the key journal.
type JournalConfig struct {
	Driver JournalDriver
	Path   string
}

// DefaultConfig returns the configuration used when no kbridge.yaml exists.
func DefaultConfig() *Config {
	return &Config{
		Kernel: "arena",
		Cache: CacheConfig{
			FlushThreshold:  DefaultFlushThreshold,
			TransientFields: []string{DefaultTransientField},
		},
		LogLevel: LogLevelInfo,
		Journal: JournalConfig{
			Driver: JournalNone,
		},
	}
}
