package config

// Bridgefile represents the structure of the kbridge.yaml configuration file.
type Bridgefile struct {
	Kernel    string       `yaml:"kernel"`
	Cache     CacheDTO     `yaml:"cache"`
	Log       LogDTO       `yaml:"log"`
	Telemetry TelemetryDTO `yaml:"telemetry"`
	Journal   JournalDTO   `yaml:"journal"`
	Worker    WorkerDTO    `yaml:"worker"`
}

// CacheDTO configures the object cache.
type CacheDTO struct {
	FlushThreshold  *int     `yaml:"flush_threshold"`
	TransientFields []string `yaml:"transient_fields"`
}

// LogDTO configures logging.
type LogDTO struct {
	Level string `yaml:"level"`
}

// TelemetryDTO configures per-call telemetry.
type TelemetryDTO struct {
	Enabled bool `yaml:"enabled"`
}

// JournalDTO configures the key journal.
type JournalDTO struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// WorkerDTO configures spawned worker processes.
type WorkerDTO struct {
	Env map[string]string `yaml:"env"`
}

// ScenarioDTO represents a scenario file.
type ScenarioDTO struct {
	Name   string     `yaml:"name"`
	Rounds []RoundDTO `yaml:"rounds"`
}

// RoundDTO represents one round of a scenario.
type RoundDTO struct {
	Calls []CallDTO `yaml:"calls"`
}

// CallDTO represents a single kernel call.
type CallDTO struct {
	Name     string         `yaml:"name"`
	Function string         `yaml:"function"`
	Inputs   map[string]any `yaml:"inputs"`
	Index    any            `yaml:"index"`
}
