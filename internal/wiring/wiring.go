// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/kbridge/internal/adapters/arena"
	_ "go.trai.ch/kbridge/internal/adapters/config"
	_ "go.trai.ch/kbridge/internal/adapters/logger"
	_ "go.trai.ch/kbridge/internal/adapters/shell"
	_ "go.trai.ch/kbridge/internal/adapters/telemetry"
	// Register app nodes.
	_ "go.trai.ch/kbridge/internal/app"
)
