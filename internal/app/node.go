package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kbridge/internal/adapters/arena"     //nolint:depguard // Wired in app layer
	"go.trai.ch/kbridge/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/kbridge/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/kbridge/internal/adapters/shell"     //nolint:depguard // Wired in app layer
	"go.trai.ch/kbridge/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			config.ConfigNodeID,
			logger.NodeID,
			arena.NodeID,
			telemetry.NodeID,
			shell.NodeID,
		},
		Run: runAppNode,
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewComponents(app, log), nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	cfg, err := graft.Dep[*domain.Config](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	if leveled, ok := log.(interface{ SetLevel(domain.LogLevel) }); ok {
		leveled.SetLevel(cfg.LogLevel)
	}

	backend, err := graft.Dep[ports.KernelBackend](ctx)
	if err != nil {
		return nil, err
	}

	tel, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	launcher, err := graft.Dep[ports.WorkerLauncher](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, log, cfg, backend, tel, launcher), nil
}
