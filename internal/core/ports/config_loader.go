package ports

import "go.trai.ch/kbridge/internal/core/domain"

// ConfigLoader defines the interface for loading bridge configuration and scripts.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads kbridge.yaml from the given working directory.
	// A missing file yields the default configuration.
	Load(cwd string) (*domain.Config, error)

	// LoadScenario reads a scenario file.
	LoadScenario(path string) (*domain.Scenario, error)

	// LoadCall reads a single call description, used for key diagnostics.
	LoadCall(path string) (domain.CallArguments, error)
}
