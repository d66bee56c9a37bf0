package telemetry

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kbridge/internal/adapters/config"
	"go.trai.ch/kbridge/internal/adapters/telemetry/progrock"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
)

// NodeID is the unique identifier for the telemetry Graft node.
const NodeID graft.ID = "adapter.telemetry"

func init() {
	graft.Register(graft.Node[ports.Telemetry]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID},
		Run: func(ctx context.Context) (ports.Telemetry, error) {
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return New(cfg), nil
		},
	})
}

// New returns the progrock recorder when telemetry is enabled, and a no-op otherwise.
func New(cfg *domain.Config) ports.Telemetry {
	if cfg.Telemetry {
		return progrock.New()
	}
	return NewNoOp()
}
