package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	availabilityrepository "github.com/slotline/slotline/internal/availability/repository"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	bookingrepository "github.com/slotline/slotline/internal/booking/repository"
	bookingservice "github.com/slotline/slotline/internal/booking/service"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	catalogservice "github.com/slotline/slotline/internal/catalog/service"
	"github.com/slotline/slotline/internal/clock"
	"github.com/slotline/slotline/internal/config"
	"github.com/slotline/slotline/internal/payment/adapters"
	"github.com/slotline/slotline/internal/payment/adapters/sandbox"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	paymentrepository "github.com/slotline/slotline/internal/payment/repository"
	paymentservice "github.com/slotline/slotline/internal/payment/service"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	pricingservice "github.com/slotline/slotline/internal/pricing/service"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	subscriptionrepository "github.com/slotline/slotline/internal/subscription/repository"
	subscriptionservice "github.com/slotline/slotline/internal/subscription/service"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type noopTracking struct{}

func (noopTracking) RecordClick(ctx context.Context, code, sessionKey string) error { return nil }
func (noopTracking) RecordConversion(ctx context.Context, code string, revenue int64) error {
	return nil
}
func (noopTracking) Get(ctx context.Context, code string) (*trackingdomain.TrackingAttribution, error) {
	return nil, trackingdomain.ErrCodeNotFound
}

type schedTestEnv struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	payments paymentdomain.Service
	subs     subscriptiondomain.Service
	subRepo  subscriptiondomain.Repository
	sched    *Scheduler
}

func newSchedTestEnv(t *testing.T, name string) *schedTestEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), name+".db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Studio{},
		&catalogdomain.ClassType{},
		&availabilitydomain.ClassSession{},
		&bookingdomain.Booking{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	policy, err := config.NewPolicyHolder()
	require.NoError(t, err)

	catalog := catalogservice.NewService(catalogservice.ServiceParam{DB: db, Log: zap.NewNop()})
	pricing := pricingservice.NewService(pricingservice.ServiceParam{Log: zap.NewNop()})

	payments, err := paymentservice.NewService(paymentservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Config: config.Config{
			PaymentProvider:      "sandbox",
			PaymentWebhookSecret: "sandbox",
		},
		Repo:     paymentrepository.Provide(),
		Catalog:  catalog,
		Registry: adapters.NewRegistry(sandbox.NewFactory()),
	})
	require.NoError(t, err)

	subRepo := subscriptionrepository.Provide()
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  subRepo,
	})

	sessions := availabilityrepository.Provide()
	bookings := bookingservice.NewService(bookingservice.ServiceParam{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Repo:         bookingrepository.Provide(),
		Sessions:     sessions,
		Catalog:      catalog,
		Payments:     payments,
		Tracking:     noopTracking{},
		Subscription: subs,
		SubRepo:      subRepo,
	})

	sched, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		Clock:           fake,
		Policy:          policy,
		PaymentSvc:      payments,
		BookingSvc:      bookings,
		SubscriptionSvc: subs,
		CatalogSvc:      catalog,
		PricingSvc:      pricing,
		Sessions:        sessions,
		SubRepo:         subRepo,
	})
	require.NoError(t, err)

	return &schedTestEnv{
		db:       db,
		node:     node,
		clock:    fake,
		payments: payments,
		subs:     subs,
		subRepo:  subRepo,
		sched:    sched,
	}
}

func (e *schedTestEnv) seedStudio(t *testing.T) *catalogdomain.Studio {
	t.Helper()
	merchant := "acct_sched"
	studio := &catalogdomain.Studio{
		ID:                e.node.Generate(),
		Name:              "Harbor Pilates",
		Slug:              "harbor-" + e.node.Generate().String(),
		Currency:          "USD",
		PaymentsEnabled:   true,
		MerchantAccountID: &merchant,
	}
	require.NoError(t, e.db.Create(studio).Error)
	return studio
}

func (e *schedTestEnv) seedClassType(t *testing.T, studio *catalogdomain.Studio, price int64) *catalogdomain.ClassType {
	t.Helper()
	ct := &catalogdomain.ClassType{
		ID:          e.node.Generate(),
		StudioID:    studio.ID,
		Name:        "Reformer",
		DurationMin: 60,
		PriceAmount: price,
		Currency:    "USD",
		Active:      true,
	}
	require.NoError(t, e.db.Create(ct).Error)
	return ct
}

func TestVoidStaleHoldsJob(t *testing.T) {
	env := newSchedTestEnv(t, "sched_stale")
	studio := env.seedStudio(t)

	hold, err := env.payments.CreateHold(context.Background(), paymentdomain.CreateHoldRequest{
		StudioID: studio.ID,
		Amount:   3000,
		Currency: "USD",
	})
	require.NoError(t, err)

	// Inside the hold window nothing happens.
	require.NoError(t, env.sched.VoidStaleHoldsJob(context.Background()))
	p, err := env.payments.GetPayment(context.Background(), hold.PaymentID)
	require.NoError(t, err)
	assert.NotEqual(t, paymentdomain.PaymentStatusVoided, p.Status)

	env.clock.Advance(31 * time.Minute)
	require.NoError(t, env.sched.VoidStaleHoldsJob(context.Background()))

	p, err = env.payments.GetPayment(context.Background(), hold.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusVoided, p.Status)
}

func TestCompletePastSessionsJob(t *testing.T) {
	env := newSchedTestEnv(t, "sched_complete")
	studio := env.seedStudio(t)

	start := env.clock.Now().Add(-3 * time.Hour)
	session := &availabilitydomain.ClassSession{
		ID:           env.node.Generate(),
		StudioID:     studio.ID,
		LocationID:   env.node.Generate(),
		ClassTypeID:  env.node.Generate(),
		InstructorID: env.node.Generate(),
		StartsAt:     start,
		EndsAt:       start.Add(time.Hour),
		Capacity:     5,
		BookedCount:  1,
		Status:       availabilitydomain.SessionStatusScheduled,
	}
	require.NoError(t, env.db.Create(session).Error)
	booking := &bookingdomain.Booking{
		ID:             env.node.Generate(),
		StudioID:       studio.ID,
		ClientID:       "client-a",
		ClassSessionID: session.ID,
		Status:         bookingdomain.BookingStatusConfirmed,
		BookingType:    pricingdomain.BookingTypeSingle,
	}
	require.NoError(t, env.db.Create(booking).Error)

	require.NoError(t, env.sched.CompletePastSessionsJob(context.Background()))

	var gotSession availabilitydomain.ClassSession
	require.NoError(t, env.db.Where("id = ?", session.ID).First(&gotSession).Error)
	assert.Equal(t, availabilitydomain.SessionStatusCompleted, gotSession.Status)

	var gotBooking bookingdomain.Booking
	require.NoError(t, env.db.Where("id = ?", booking.ID).First(&gotBooking).Error)
	assert.Equal(t, bookingdomain.BookingStatusCompleted, gotBooking.Status)
}

func TestReplenishPacksJobOpensOneHold(t *testing.T) {
	env := newSchedTestEnv(t, "sched_replenish")
	studio := env.seedStudio(t)
	classType := env.seedClassType(t, studio, 3000)

	size := 10
	remaining := 0
	sub := &subscriptiondomain.Subscription{
		ID:               env.node.Generate(),
		StudioID:         studio.ID,
		ClientID:         "client-a",
		ClassTypeID:      classType.ID,
		Type:             pricingdomain.BookingTypePack,
		Interval:         subscriptiondomain.IntervalMonthly,
		Status:           subscriptiondomain.SubscriptionStatusActive,
		CurrentPeriodEnd: env.clock.Now().AddDate(0, 0, 30),
		PackSize:         &size,
		PackRemaining:    &remaining,
		AutoRenew:        true,
	}
	require.NoError(t, env.db.Create(sub).Error)

	require.NoError(t, env.sched.ReplenishPacksJob(context.Background()))

	got, err := env.subs.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RenewalPaymentID)

	renewal, err := env.payments.GetPayment(context.Background(), *got.RenewalPaymentID)
	require.NoError(t, err)
	assert.EqualValues(t, 24000, renewal.Amount) // 3000 x 10 at the 20% tier

	// A second sweep sees the in-flight renewal and opens nothing new.
	require.NoError(t, env.sched.ReplenishPacksJob(context.Background()))
	var count int64
	require.NoError(t, env.db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestExpireSubscriptionsJobRenewsRecurring(t *testing.T) {
	env := newSchedTestEnv(t, "sched_recurring")
	studio := env.seedStudio(t)
	classType := env.seedClassType(t, studio, 3000)

	due := &subscriptiondomain.Subscription{
		ID:               env.node.Generate(),
		StudioID:         studio.ID,
		ClientID:         "client-a",
		ClassTypeID:      classType.ID,
		Type:             pricingdomain.BookingTypeRecurring,
		Interval:         subscriptiondomain.IntervalMonthly,
		Status:           subscriptiondomain.SubscriptionStatusActive,
		CurrentPeriodEnd: env.clock.Now().Add(-time.Hour),
		AutoRenew:        true,
	}
	require.NoError(t, env.db.Create(due).Error)

	lapsed := &subscriptiondomain.Subscription{
		ID:               env.node.Generate(),
		StudioID:         studio.ID,
		ClientID:         "client-b",
		ClassTypeID:      classType.ID,
		Type:             pricingdomain.BookingTypeRecurring,
		Interval:         subscriptiondomain.IntervalMonthly,
		Status:           subscriptiondomain.SubscriptionStatusCancelRequested,
		CurrentPeriodEnd: env.clock.Now().Add(-time.Hour),
	}
	require.NoError(t, env.db.Create(lapsed).Error)

	require.NoError(t, env.sched.ExpireSubscriptionsJob(context.Background()))

	got, err := env.subs.Get(context.Background(), due.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, got.Status)
	require.NotNil(t, got.RenewalPaymentID)

	renewal, err := env.payments.GetPayment(context.Background(), *got.RenewalPaymentID)
	require.NoError(t, err)
	assert.EqualValues(t, 2550, renewal.Amount) // 3000 less the recurring discount

	gotLapsed, err := env.subs.Get(context.Background(), lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, gotLapsed.Status)

	// Settlement starts the next period from now, not the lapsed period end.
	renewed, err := env.subs.ApplyRenewal(context.Background(), subscriptiondomain.RenewalRequest{
		SubscriptionID: due.ID,
		PaymentID:      *got.RenewalPaymentID,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, env.clock.Now().AddDate(0, 1, 0), renewed.CurrentPeriodEnd, time.Second)
	assert.Nil(t, renewed.RenewalPaymentID)
}

func TestRenewalSettlementRefillsPack(t *testing.T) {
	env := newSchedTestEnv(t, "sched_refill")
	studio := env.seedStudio(t)
	classType := env.seedClassType(t, studio, 3000)

	size := 10
	remaining := 0
	sub := &subscriptiondomain.Subscription{
		ID:               env.node.Generate(),
		StudioID:         studio.ID,
		ClientID:         "client-a",
		ClassTypeID:      classType.ID,
		Type:             pricingdomain.BookingTypePack,
		Interval:         subscriptiondomain.IntervalMonthly,
		Status:           subscriptiondomain.SubscriptionStatusActive,
		CurrentPeriodEnd: env.clock.Now().AddDate(0, 0, 30),
		PackSize:         &size,
		PackRemaining:    &remaining,
		AutoRenew:        true,
	}
	require.NoError(t, env.db.Create(sub).Error)
	require.NoError(t, env.sched.ReplenishPacksJob(context.Background()))

	got, err := env.subs.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RenewalPaymentID)

	// Settlement applies the renewal exactly once.
	renewed, err := env.subs.ApplyRenewal(context.Background(), subscriptiondomain.RenewalRequest{
		SubscriptionID: sub.ID,
		PaymentID:      *got.RenewalPaymentID,
		PackRefill:     size,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, *renewed.PackRemaining)
	assert.Nil(t, renewed.RenewalPaymentID)

	_, err = env.subs.ApplyRenewal(context.Background(), subscriptiondomain.RenewalRequest{
		SubscriptionID: sub.ID,
		PaymentID:      *got.RenewalPaymentID,
		PackRefill:     size,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrRenewalAlreadyApplied)
}
