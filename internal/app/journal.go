package app

import (
	"go.trai.ch/kbridge/internal/adapters/cas"    //nolint:depguard // Wired in app layer
	"go.trai.ch/kbridge/internal/adapters/sqlite" //nolint:depguard // Wired in app layer
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

// openJournal opens the configured key journal. It returns nil when the journal is disabled.
func openJournal(cfg domain.JournalConfig) (ports.KeyJournal, error) {
	switch cfg.Driver {
	case domain.JournalNone, "":
		return nil, nil
	case domain.JournalJSON:
		j, err := cas.NewJournal(cfg.Path)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to open json journal")
		}
		return j, nil
	case domain.JournalSQLite:
		j, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to open sqlite journal")
		}
		return j, nil
	default:
		return nil, zerr.With(zerr.New("unknown journal driver"), "driver", string(cfg.Driver))
	}
}
