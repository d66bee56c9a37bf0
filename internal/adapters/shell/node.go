package shell

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kbridge/internal/adapters/config"
	"go.trai.ch/kbridge/internal/adapters/logger"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
)

// NodeID is the unique identifier for the worker launcher Graft node.
const NodeID graft.ID = "adapter.worker_launcher"

func init() {
	graft.Register(graft.Node[ports.WorkerLauncher]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, config.ConfigNodeID},
		Run: func(ctx context.Context) (ports.WorkerLauncher, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return NewLauncher(log, cfg.WorkerEnv), nil
		},
	})
}
