package audit

import (
	"github.com/ajoure/reconcile/internal/audit/repository"
	auditservice "github.com/ajoure/reconcile/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(repository.Provide),
	fx.Provide(auditservice.NewService),
)
