package tracking

import (
	"github.com/slotline/slotline/internal/tracking/repository"
	"github.com/slotline/slotline/internal/tracking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tracking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
