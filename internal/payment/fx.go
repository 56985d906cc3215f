package payment

import (
	"github.com/slotline/slotline/internal/payment/adapters"
	"github.com/slotline/slotline/internal/payment/adapters/sandbox"
	"github.com/slotline/slotline/internal/payment/adapters/stripe"
	"github.com/slotline/slotline/internal/payment/repository"
	"github.com/slotline/slotline/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(newRegistry),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		stripe.NewFactory(),
		sandbox.NewFactory(),
	)
}
