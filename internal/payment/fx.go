package payment

import (
	"github.com/ajoure/reconcile/internal/payment/repository"
	paymentservice "github.com/ajoure/reconcile/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
)
