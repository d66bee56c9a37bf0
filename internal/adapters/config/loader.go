// Package config provides the configuration and scenario loader for kbridge.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	// Filename is the configuration file looked up in the working directory.
	Filename = "kbridge.yaml"
	// DefaultJournalPath is used when the journal is enabled without a path.
	DefaultJournalPath = ".kbridge/keys"
)

// Loader implements ports.ConfigLoader using YAML files.
type Loader struct {
	Filename string
	logger   ports.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(log ports.Logger) *Loader {
	return &Loader{Filename: Filename, logger: log}
}

// Load reads the configuration from the given working directory.
func (l *Loader) Load(cwd string) (*domain.Config, error) {
	path := filepath.Join(cwd, l.Filename)

	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Debug("no configuration file, using defaults", "path", path)
			return domain.DefaultConfig(), nil
		}
		return nil, zerr.Wrap(err, "failed to read config file")
	}

	var file Bridgefile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to parse config file"), "path", path)
	}

	cfg, err := file.toDomain()
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	if cfg.Journal.Path != "" && !filepath.IsAbs(cfg.Journal.Path) {
		cfg.Journal.Path = filepath.Join(cwd, cfg.Journal.Path)
	}
	return cfg, nil
}

func (f *Bridgefile) toDomain() (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if f.Kernel != "" {
		cfg.Kernel = f.Kernel
	}
	if f.Cache.FlushThreshold != nil {
		if *f.Cache.FlushThreshold < 0 {
			return nil, zerr.New("cache.flush_threshold must not be negative")
		}
		cfg.Cache.FlushThreshold = *f.Cache.FlushThreshold
	}
	if f.Cache.TransientFields != nil {
		cfg.Cache.TransientFields = f.Cache.TransientFields
	}
	if f.Log.Level != "" {
		cfg.LogLevel = domain.ParseLogLevel(f.Log.Level)
	}
	cfg.Telemetry = f.Telemetry.Enabled
	cfg.WorkerEnv = f.Worker.Env

	switch driver := domain.JournalDriver(f.Journal.Driver); driver {
	case "", domain.JournalNone:
		cfg.Journal = domain.JournalConfig{Driver: domain.JournalNone}
	case domain.JournalJSON, domain.JournalSQLite:
		cfg.Journal = domain.JournalConfig{Driver: driver, Path: f.Journal.Path}
		if cfg.Journal.Path == "" {
			cfg.Journal.Path = DefaultJournalPath + "." + journalExt(driver)
		}
	default:
		return nil, zerr.With(zerr.New("unknown journal driver"), "driver", f.Journal.Driver)
	}

	return cfg, nil
}

func journalExt(driver domain.JournalDriver) string {
	if driver == domain.JournalSQLite {
		return "db"
	}
	return "json"
}

// LoadScenario reads and validates a scenario file.
func (l *Loader) LoadScenario(path string) (*domain.Scenario, error) {
	var dto ScenarioDTO
	if err := readYAML(path, &dto); err != nil {
		return nil, err
	}

	s := &domain.Scenario{Name: dto.Name, Rounds: make([]domain.Round, len(dto.Rounds))}
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}

	bound := make(map[string]bool)
	for r, round := range dto.Rounds {
		calls := make([]domain.ScenarioCall, len(round.Calls))
		for i, c := range round.Calls {
			if c.Function == "" {
				return nil, zerr.With(zerr.With(
					zerr.Wrap(domain.ErrInvalidScenario, "call without function"), "round", r), "call", i)
			}
			if _, err := domain.SplitFunctionName(c.Function); err != nil && !isReserved(c.Function) {
				return nil, zerr.With(zerr.Wrap(domain.ErrInvalidScenario, err.Error()), "round", r)
			}
			if ref, ok := unboundRef(c.Inputs, bound); ok {
				return nil, zerr.With(zerr.With(
					zerr.Wrap(domain.ErrInvalidScenario, "reference to unknown call $"+ref), "round", r), "function", c.Function)
			}
			if c.Name != "" {
				bound[c.Name] = true
			}
			calls[i] = domain.ScenarioCall{Name: c.Name, Function: c.Function, Inputs: c.Inputs}
		}
		s.Rounds[r] = domain.Round{Calls: calls}
	}
	return s, nil
}

// LoadCall reads a single call description. JSON files are accepted as YAML.
func (l *Loader) LoadCall(path string) (domain.CallArguments, error) {
	var dto CallDTO
	if err := readYAML(path, &dto); err != nil {
		return domain.CallArguments{}, err
	}
	if dto.Function == "" {
		return domain.CallArguments{}, zerr.With(zerr.New("call without function"), "path", path)
	}
	return domain.CallArguments{FunctionName: dto.Function, Inputs: dto.Inputs, Index: dto.Index}, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read file"), "path", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to parse file"), "path", path)
	}
	return nil
}

func isReserved(name string) bool {
	return domain.CallArguments{FunctionName: name}.IsReserved()
}

// unboundRef returns the first "$name" reference in v that is not bound yet.
func unboundRef(v any, bound map[string]bool) (string, bool) {
	switch val := v.(type) {
	case map[string]any:
		for _, elem := range val {
			if ref, ok := unboundRef(elem, bound); ok {
				return ref, true
			}
		}
	case []any:
		for _, elem := range val {
			if ref, ok := unboundRef(elem, bound); ok {
				return ref, true
			}
		}
	default:
		if ref, ok := domain.ScenarioRef(v); ok && !bound[ref] {
			return ref, true
		}
	}
	return "", false
}

var _ ports.ConfigLoader = (*Loader)(nil)
