package booking

import (
	"github.com/slotline/slotline/internal/booking/repository"
	"github.com/slotline/slotline/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
