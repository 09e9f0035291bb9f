package reconciliation

import (
	reconservice "github.com/ajoure/reconcile/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(reconservice.NewService),
)
