package availability

import (
	"github.com/slotline/slotline/internal/availability/repository"
	"github.com/slotline/slotline/internal/availability/service"
	"go.uber.org/fx"
)

var Module = fx.Module("availability.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
