package arena

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kbridge/internal/adapters/config"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

// NodeID is the unique identifier for the kernel backend Graft node.
const NodeID graft.ID = "adapter.kernel_backend"

func init() {
	graft.Register(graft.Node[ports.KernelBackend]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID},
		Run: func(ctx context.Context) (ports.KernelBackend, error) {
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return Select(cfg.Kernel)
		},
	})
}

// Select returns a fresh backend for the configured kernel name.
func Select(name string) (ports.KernelBackend, error) {
	switch name {
	case Name, "":
		return NewBackend(NewArena()), nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "cannot select kernel"), "kernel", name)
	}
}
