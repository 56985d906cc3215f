package service

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	availabilityrepository "github.com/slotline/slotline/internal/availability/repository"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	bookingrepository "github.com/slotline/slotline/internal/booking/repository"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	catalogservice "github.com/slotline/slotline/internal/catalog/service"
	"github.com/slotline/slotline/internal/clock"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	subscriptionrepository "github.com/slotline/slotline/internal/subscription/repository"
	subscriptionservice "github.com/slotline/slotline/internal/subscription/service"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubPayments struct {
	mu       sync.Mutex
	payments map[snowflake.ID]*paymentdomain.Payment
	voided   []snowflake.ID
}

func newStubPayments() *stubPayments {
	return &stubPayments{payments: map[snowflake.ID]*paymentdomain.Payment{}}
}

func (s *stubPayments) add(p *paymentdomain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
}

func (s *stubPayments) voidedIDs() []snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]snowflake.ID(nil), s.voided...)
}

func (s *stubPayments) CreateHold(ctx context.Context, req paymentdomain.CreateHoldRequest) (*paymentdomain.CreateHoldResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPayments) VoidHold(ctx context.Context, paymentID snowflake.ID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voided = append(s.voided, paymentID)
	return nil
}

func (s *stubPayments) GetPayment(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return p, nil
}

func (s *stubPayments) ProcessEvent(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.ProcessEventResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPayments) VoidStaleHolds(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return 0, nil
}

type conversion struct {
	code    string
	revenue int64
}

type stubTracking struct {
	conversions chan conversion
}

func newStubTracking() *stubTracking {
	return &stubTracking{conversions: make(chan conversion, 16)}
}

func (s *stubTracking) RecordClick(ctx context.Context, code, sessionKey string) error {
	return nil
}

func (s *stubTracking) RecordConversion(ctx context.Context, code string, revenue int64) error {
	s.conversions <- conversion{code: code, revenue: revenue}
	return nil
}

func (s *stubTracking) Get(ctx context.Context, code string) (*trackingdomain.TrackingAttribution, error) {
	return nil, trackingdomain.ErrCodeNotFound
}

type bookingTestEnv struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	payments *stubPayments
	tracking *stubTracking
	svc      bookingdomain.Service
	subs     subscriptiondomain.Service
}

func newBookingTestEnv(t *testing.T, name string) *bookingTestEnv {
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
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	payments := newStubPayments()
	tracking := newStubTracking()
	subRepo := subscriptionrepository.Provide()
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  subRepo,
	})
	catalog := catalogservice.NewService(catalogservice.ServiceParam{
		DB:  db,
		Log: zap.NewNop(),
	})

	svc := NewService(ServiceParam{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Repo:         bookingrepository.Provide(),
		Sessions:     availabilityrepository.Provide(),
		Catalog:      catalog,
		Payments:     payments,
		Tracking:     tracking,
		Subscription: subs,
		SubRepo:      subRepo,
	})

	return &bookingTestEnv{
		db:       db,
		node:     node,
		clock:    fake,
		payments: payments,
		tracking: tracking,
		svc:      svc,
		subs:     subs,
	}
}

func (e *bookingTestEnv) seedStudio(t *testing.T, paymentsEnabled bool) *catalogdomain.Studio {
	t.Helper()
	merchant := "acct_test"
	studio := &catalogdomain.Studio{
		ID:              e.node.Generate(),
		Name:            "Riverside Yoga",
		Slug:            "riverside-" + e.node.Generate().String(),
		Currency:        "USD",
		PaymentsEnabled: paymentsEnabled,
	}
	if paymentsEnabled {
		studio.MerchantAccountID = &merchant
	}
	require.NoError(t, e.db.Create(studio).Error)
	return studio
}

func (e *bookingTestEnv) seedSession(t *testing.T, studio *catalogdomain.Studio, capacity int) *availabilitydomain.ClassSession {
	t.Helper()
	start := e.clock.Now().Add(24 * time.Hour)
	session := &availabilitydomain.ClassSession{
		ID:           e.node.Generate(),
		StudioID:     studio.ID,
		LocationID:   e.node.Generate(),
		ClassTypeID:  e.node.Generate(),
		InstructorID: e.node.Generate(),
		StartsAt:     start,
		EndsAt:       start.Add(time.Hour),
		Capacity:     capacity,
		BookedCount:  0,
		Status:       availabilitydomain.SessionStatusScheduled,
	}
	require.NoError(t, e.db.Create(session).Error)
	return session
}

func (e *bookingTestEnv) seedPayment(t *testing.T, studio *catalogdomain.Studio, amount int64) *paymentdomain.Payment {
	t.Helper()
	p := &paymentdomain.Payment{
		ID:       e.node.Generate(),
		StudioID: studio.ID,
		Amount:   amount,
		Currency: "USD",
		Status:   paymentdomain.PaymentStatusAuthorized,
	}
	e.payments.add(p)
	return p
}

func (e *bookingTestEnv) bookedCount(t *testing.T, sessionID snowflake.ID) int {
	t.Helper()
	var session availabilitydomain.ClassSession
	require.NoError(t, e.db.Where("id = ?", sessionID).First(&session).Error)
	return session.BookedCount
}

func singleConfirm(sessionID snowflake.ID, clientID string, paymentID *snowflake.ID) bookingdomain.ConfirmRequest {
	return bookingdomain.ConfirmRequest{
		ClientID:       clientID,
		ClassSessionID: sessionID,
		Selection:      bookingdomain.Selection{Type: pricingdomain.BookingTypeSingle},
		PaymentID:      paymentID,
		Amount:         3000,
	}
}

func TestConfirmNeverOverbooks(t *testing.T) {
	env := newBookingTestEnv(t, "booking_overbook")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 2)

	const attempts = 4
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		payment := env.seedPayment(t, studio, 3000)
		clientID := "client-" + payment.ID.String()
		wg.Add(1)
		go func(pid snowflake.ID, client string) {
			defer wg.Done()
			_, err := env.svc.Confirm(context.Background(), singleConfirm(session.ID, client, &pid))
			results <- err
		}(payment.ID, clientID)
	}
	wg.Wait()
	close(results)

	var confirmed, rejected int
	for err := range results {
		switch {
		case err == nil:
			confirmed++
		case errors.Is(err, bookingdomain.ErrSlotUnavailable):
			rejected++
		default:
			t.Fatalf("unexpected confirm error: %v", err)
		}
	}

	assert.Equal(t, 2, confirmed)
	assert.Equal(t, 2, rejected)
	assert.Equal(t, 2, env.bookedCount(t, session.ID))
	assert.Len(t, env.payments.voidedIDs(), 2)

	var count int64
	require.NoError(t, env.db.Model(&bookingdomain.Booking{}).
		Where("class_session_id = ? AND status = ?", session.ID, bookingdomain.BookingStatusConfirmed).
		Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestConfirmIdempotentPerPayment(t *testing.T) {
	env := newBookingTestEnv(t, "booking_idem")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 5)
	payment := env.seedPayment(t, studio, 3000)

	first, err := env.svc.Confirm(context.Background(), singleConfirm(session.ID, "client-a", &payment.ID))
	require.NoError(t, err)

	second, err := env.svc.Confirm(context.Background(), singleConfirm(session.ID, "client-a", &payment.ID))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, env.bookedCount(t, session.ID))
}

func TestConfirmVoidsHoldWhenSessionFull(t *testing.T) {
	env := newBookingTestEnv(t, "booking_full")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 1)

	winner := env.seedPayment(t, studio, 3000)
	_, err := env.svc.Confirm(context.Background(), singleConfirm(session.ID, "client-a", &winner.ID))
	require.NoError(t, err)

	loser := env.seedPayment(t, studio, 3000)
	_, err = env.svc.Confirm(context.Background(), singleConfirm(session.ID, "client-b", &loser.ID))
	require.ErrorIs(t, err, bookingdomain.ErrSlotUnavailable)

	assert.Equal(t, []snowflake.ID{loser.ID}, env.payments.voidedIDs())
	assert.Equal(t, 1, env.bookedCount(t, session.ID))

	_, err = env.svc.GetByPaymentID(context.Background(), loser.ID)
	assert.ErrorIs(t, err, bookingdomain.ErrBookingNotFound)
}

func TestConfirmDuplicatePaymentKeepsSeatCount(t *testing.T) {
	env := newBookingTestEnv(t, "booking_dupseat")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 3)
	payment := env.seedPayment(t, studio, 3000)

	winner, err := env.svc.Confirm(context.Background(), singleConfirm(session.ID, "client-a", &payment.ID))
	require.NoError(t, err)
	require.Equal(t, 1, env.bookedCount(t, session.ID))

	// A concurrent confirm of the same payment loses the insert race after
	// its transaction rolled back its own claim. The winner's seat must
	// survive the failure mapping untouched.
	svc := env.svc.(*Service)
	dup := errors.New("UNIQUE constraint failed: bookings.payment_id")
	existing, err := svc.confirmFailed(context.Background(), singleConfirm(session.ID, "client-a", &payment.ID), dup)
	require.NoError(t, err)

	assert.Equal(t, winner.ID, existing.ID)
	assert.Equal(t, 1, env.bookedCount(t, session.ID))
	assert.Empty(t, env.payments.voidedIDs())
}

func TestConfirmFullSessionReturnsReconciledBooking(t *testing.T) {
	env := newBookingTestEnv(t, "booking_fullreplay")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 1)
	payment := env.seedPayment(t, studio, 3000)

	winner, err := env.svc.Confirm(context.Background(), singleConfirm(session.ID, "client-a", &payment.ID))
	require.NoError(t, err)

	// A replayed confirmation for an already-reconciled payment can hit the
	// full session after passing the pre-check. It must get the existing
	// booking back, never a void of the winner's hold.
	svc := env.svc.(*Service)
	existing, err := svc.confirmFailed(context.Background(),
		singleConfirm(session.ID, "client-a", &payment.ID),
		availabilitydomain.ErrSessionFull,
	)
	require.NoError(t, err)

	assert.Equal(t, winner.ID, existing.ID)
	assert.Empty(t, env.payments.voidedIDs())
	assert.Equal(t, 1, env.bookedCount(t, session.ID))
}

func TestConfirmFreeStudioWithoutPayment(t *testing.T) {
	env := newBookingTestEnv(t, "booking_free")
	studio := env.seedStudio(t, false)
	session := env.seedSession(t, studio, 3)

	// The disabled flag must survive the insert, not get swallowed by a
	// column default.
	var stored catalogdomain.Studio
	require.NoError(t, env.db.Where("id = ?", studio.ID).First(&stored).Error)
	require.False(t, stored.PaymentsEnabled)

	booking, err := env.svc.Confirm(context.Background(), singleConfirm(session.ID, "client-a", nil))
	require.NoError(t, err)

	assert.Nil(t, booking.PaymentID)
	assert.Equal(t, bookingdomain.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, 1, env.bookedCount(t, session.ID))
}

func TestConfirmRequiresPaymentWhenEnabled(t *testing.T) {
	env := newBookingTestEnv(t, "booking_reqpay")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 3)

	_, err := env.svc.Confirm(context.Background(), singleConfirm(session.ID, "client-a", nil))
	assert.ErrorIs(t, err, bookingdomain.ErrPaymentRequired)
	assert.Equal(t, 0, env.bookedCount(t, session.ID))
}

func TestConfirmPackEnrollsAndConsumesCredits(t *testing.T) {
	env := newBookingTestEnv(t, "booking_pack")
	studio := env.seedStudio(t, true)
	first := env.seedSession(t, studio, 5)
	payment := env.seedPayment(t, studio, 13500)

	booking, err := env.svc.Confirm(context.Background(), bookingdomain.ConfirmRequest{
		ClientID:       "client-a",
		ClassSessionID: first.ID,
		Selection: bookingdomain.Selection{
			Type:      pricingdomain.BookingTypePack,
			PackSize:  5,
			AutoRenew: true,
		},
		PaymentID: &payment.ID,
		Amount:    13500,
	})
	require.NoError(t, err)
	require.NotNil(t, booking.SubscriptionID)

	sub, err := env.subs.Get(context.Background(), *booking.SubscriptionID)
	require.NoError(t, err)
	require.NotNil(t, sub.PackRemaining)
	assert.Equal(t, 4, *sub.PackRemaining)
	assert.True(t, sub.AutoRenew)

	// A later class is booked against the pack, no payment needed.
	second := env.seedSession(t, studio, 5)
	next, err := env.svc.Confirm(context.Background(), bookingdomain.ConfirmRequest{
		ClientID:       "client-a",
		ClassSessionID: second.ID,
		Selection:      bookingdomain.Selection{Type: pricingdomain.BookingTypeSingle},
		SubscriptionID: booking.SubscriptionID,
	})
	require.NoError(t, err)
	assert.Nil(t, next.PaymentID)

	sub, err = env.subs.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *sub.PackRemaining)
}

func TestCancelReleasesSeatKeepsConversion(t *testing.T) {
	env := newBookingTestEnv(t, "booking_cancel")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 2)
	payment := env.seedPayment(t, studio, 3000)

	req := singleConfirm(session.ID, "client-a", &payment.ID)
	req.TrackingCode = "spring-sale"
	booking, err := env.svc.Confirm(context.Background(), req)
	require.NoError(t, err)

	select {
	case conv := <-env.tracking.conversions:
		assert.Equal(t, "spring-sale", conv.code)
		assert.EqualValues(t, 3000, conv.revenue)
	case <-time.After(2 * time.Second):
		t.Fatal("conversion was not recorded")
	}

	env.clock.Advance(2 * time.Hour)
	cancelled, err := env.svc.Cancel(context.Background(), booking.ID, "client-a")
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 0, env.bookedCount(t, session.ID))
	assert.WithinDuration(t, env.clock.Now(), cancelled.UpdatedAt, time.Second)

	// The attributed conversion stays on the books after cancellation.
	select {
	case <-env.tracking.conversions:
		t.Fatal("cancellation must not touch conversions")
	default:
	}

	again, err := env.svc.Cancel(context.Background(), booking.ID, "client-a")
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.BookingStatusCancelled, again.Status)
	assert.Equal(t, 0, env.bookedCount(t, session.ID))
}

func TestConfirmFromPaymentMetadata(t *testing.T) {
	env := newBookingTestEnv(t, "booking_meta")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 3)
	payment := env.seedPayment(t, studio, 2550)
	payment.Metadata = bookingdomain.SelectionMetadata(
		"client-a",
		session.ID,
		bookingdomain.Selection{Type: pricingdomain.BookingTypeRecurring},
		"spring-sale",
	)

	booking, err := env.svc.ConfirmFromPayment(context.Background(), payment)
	require.NoError(t, err)

	assert.Equal(t, "client-a", booking.ClientID)
	assert.Equal(t, session.ID, booking.ClassSessionID)
	assert.Equal(t, pricingdomain.BookingTypeRecurring, booking.BookingType)
	require.NotNil(t, booking.PaymentID)
	assert.Equal(t, payment.ID, *booking.PaymentID)
	require.NotNil(t, booking.SubscriptionID)
}

func TestSubscriptionAccessWindow(t *testing.T) {
	env := newBookingTestEnv(t, "booking_subaccess")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 3)
	payment := env.seedPayment(t, studio, 2550)

	booking, err := env.svc.Confirm(context.Background(), bookingdomain.ConfirmRequest{
		ClientID:       "client-a",
		ClassSessionID: session.ID,
		Selection:      bookingdomain.Selection{Type: pricingdomain.BookingTypeRecurring},
		PaymentID:      &payment.ID,
		Amount:         2550,
	})
	require.NoError(t, err)
	require.NotNil(t, booking.SubscriptionID)

	sub, err := env.subs.Cancel(context.Background(), *booking.SubscriptionID, "client-a")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCancelRequested, sub.Status)
	assert.WithinDuration(t, env.clock.Now(), sub.UpdatedAt, time.Second)

	// Inside the paid period access continues.
	ok, err := env.subs.HasAccess(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Past the period end access is gone and the sweep expires the row.
	env.clock.Advance(32 * 24 * time.Hour)
	ok, err = env.subs.HasAccess(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := env.subs.ExpireDue(context.Background(), 50)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	sub, err = env.subs.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, sub.Status)
}
