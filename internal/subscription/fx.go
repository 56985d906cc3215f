package subscription

import (
	"github.com/slotline/slotline/internal/subscription/repository"
	"github.com/slotline/slotline/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
