package migration

import (
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	"github.com/slotline/slotline/internal/config"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	"github.com/slotline/slotline/internal/seed"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// mysql and sqlite deployments are dev oriented; AutoMigrate
			// keeps them usable without a second migration path.
			if err := conn.AutoMigrate(
				&catalogdomain.Studio{},
				&catalogdomain.Location{},
				&catalogdomain.Instructor{},
				&catalogdomain.ClassType{},
				&availabilitydomain.ClassSession{},
				&paymentdomain.Payment{},
				&paymentdomain.EventRecord{},
				&subscriptiondomain.Subscription{},
				&bookingdomain.Booking{},
				&trackingdomain.TrackingAttribution{},
			); err != nil {
				return err
			}
		}

		if cfg.IsProduction() {
			return nil
		}
		return seed.EnsureDemoStudio(conn)
	}),
)
