package modules

import (
	"sitepulse.io/sitepulse/internal/api/handlers"
	"sitepulse.io/sitepulse/internal/audit"
)

// NewServerDeps builds base server deps then lets each module contribute
// explicit wiring.
func NewServerDeps(infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Store:  infra.Store,
		Events: infra.Store,
		Ledger: audit.NewService(infra.Store),
		Hub:    infra.Hub,
		Pinger: infra.Pool,
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}
