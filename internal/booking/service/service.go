package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	"github.com/slotline/slotline/internal/clock"
	"github.com/slotline/slotline/internal/observability/metrics"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"github.com/slotline/slotline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const attributionTimeout = 10 * time.Second

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID        *snowflake.Node
	clock        clock.Clock
	repo         bookingdomain.Repository
	sessions     availabilitydomain.Repository
	catalog      catalogdomain.Service
	payments     paymentdomain.Service
	tracking     trackingdomain.Service
	subscription subscriptiondomain.Service
	subRepo      subscriptiondomain.Repository
	metrics      *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         bookingdomain.Repository
	Sessions     availabilitydomain.Repository
	Catalog      catalogdomain.Service
	Payments     paymentdomain.Service
	Tracking     trackingdomain.Service
	Subscription subscriptiondomain.Service
	SubRepo      subscriptiondomain.Repository
	Metrics      *metrics.Metrics
}

func NewService(p ServiceParam) bookingdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("booking.service"),

		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		sessions:     p.Sessions,
		catalog:      p.Catalog,
		payments:     p.Payments,
		tracking:     p.Tracking,
		subscription: p.Subscription,
		subRepo:      p.SubRepo,
		metrics:      p.Metrics,
	}
}

// Confirm turns a settled hold, a pack credit or a free-tier request into a
// confirmed seat. The seat claim and the booking insert commit in one
// transaction; when the session filled up in the meantime the hold is voided
// and no booking row exists.
func (s *Service) Confirm(ctx context.Context, req bookingdomain.ConfirmRequest) (*bookingdomain.Booking, error) {
	if err := validateSelection(req.Selection); err != nil {
		return nil, err
	}

	// Replayed confirmations for the same payment return the original
	// booking without touching the session.
	if req.PaymentID != nil {
		existing, err := s.repo.FindByPaymentID(ctx, s.db, *req.PaymentID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, bookingdomain.ErrBookingNotFound) {
			return nil, err
		}
	}

	session, err := s.sessions.FindSession(ctx, s.db, req.ClassSessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != availabilitydomain.SessionStatusScheduled {
		return nil, availabilitydomain.ErrSessionNotOpen
	}

	studio, err := s.catalog.GetStudio(ctx, session.StudioID)
	if err != nil {
		return nil, err
	}

	var payment *paymentdomain.Payment
	if req.PaymentID != nil {
		payment, err = s.payments.GetPayment(ctx, *req.PaymentID)
		if err != nil {
			return nil, err
		}
		if payment.StudioID != session.StudioID {
			return nil, bookingdomain.ErrStudioMismatch
		}
		switch payment.Status {
		case paymentdomain.PaymentStatusAuthorized, paymentdomain.PaymentStatusSucceeded:
		default:
			return nil, bookingdomain.ErrPaymentNotUsable
		}
	}

	var sub *subscriptiondomain.Subscription
	if req.SubscriptionID != nil {
		sub, err = s.subscription.Get(ctx, *req.SubscriptionID)
		if err != nil {
			return nil, err
		}
		if sub.ClientID != req.ClientID || sub.StudioID != session.StudioID {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}
		if !sub.HasAccess(s.clock.Now()) {
			return nil, subscriptiondomain.ErrSubscriptionInactive
		}
	}

	if studio.PaymentsEnabled && req.PaymentID == nil && req.SubscriptionID == nil {
		return nil, bookingdomain.ErrPaymentRequired
	}

	now := s.clock.Now()
	booking := &bookingdomain.Booking{
		ID:             s.genID.Generate(),
		StudioID:       session.StudioID,
		ClientID:       req.ClientID,
		ClassSessionID: session.ID,
		Status:         bookingdomain.BookingStatusConfirmed,
		BookingType:    req.Selection.Type,
		AutoRenew:      req.Selection.AutoRenew,
		PaymentID:      req.PaymentID,
		SubscriptionID: req.SubscriptionID,
		Amount:         req.Amount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Selection.PackSize > 0 {
		size := req.Selection.PackSize
		booking.PackSize = &size
	}
	if req.TrackingCode != "" {
		code := req.TrackingCode
		booking.TrackingCode = &code
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.sessions.ClaimSeat(ctx, tx, session.ID); err != nil {
			return err
		}
		if sub != nil && sub.IsPack() {
			rows, err := s.subRepo.ConsumeCredit(ctx, tx, sub.ID)
			if err != nil {
				return err
			}
			if rows == 0 {
				return subscriptiondomain.ErrNoCreditsRemaining
			}
		}
		return s.repo.Insert(ctx, tx, booking)
	})
	if err != nil {
		return s.confirmFailed(ctx, req, err)
	}

	s.metrics.RecordBookingConfirmed(ctx, string(booking.BookingType))
	s.log.Info("booking confirmed",
		zap.String("booking_id", booking.ID.String()),
		zap.String("class_session_id", session.ID.String()),
		zap.String("booking_type", string(booking.BookingType)),
	)

	s.attributeConversion(booking)
	s.enroll(ctx, booking, session, req)
	return booking, nil
}

// confirmFailed maps transaction failures. A full session voids the hold so
// the client is never charged for a seat they did not get.
func (s *Service) confirmFailed(ctx context.Context, req bookingdomain.ConfirmRequest, err error) (*bookingdomain.Booking, error) {
	switch {
	case errors.Is(err, availabilitydomain.ErrSessionFull):
		// The session filling up can also mean this payment was already
		// reconciled between the pre-check and the claim. That booking
		// is the answer; only void when no booking owns the payment.
		if req.PaymentID != nil {
			if existing, ferr := s.repo.FindByPaymentID(ctx, s.db, *req.PaymentID); ferr == nil {
				return existing, nil
			}
			if verr := s.payments.VoidHold(ctx, *req.PaymentID, "capacity_conflict"); verr != nil {
				s.log.Error("void on capacity conflict failed",
					zap.String("payment_id", req.PaymentID.String()),
					zap.Error(verr),
				)
			}
		}
		s.metrics.RecordBookingRejected(ctx, "slot_unavailable")
		return nil, bookingdomain.ErrSlotUnavailable

	case db.IsDuplicateKeyErr(err) && req.PaymentID != nil:
		// Lost the insert race against a concurrent confirm of the same
		// payment. The rollback already returned this attempt's seat;
		// the winner's claim stands, hand back its booking.
		if existing, ferr := s.repo.FindByPaymentID(ctx, s.db, *req.PaymentID); ferr == nil {
			return existing, nil
		}
		return nil, err

	case errors.Is(err, subscriptiondomain.ErrNoCreditsRemaining):
		s.metrics.RecordBookingRejected(ctx, "no_credits")
		return nil, err

	default:
		return nil, err
	}
}

// attributeConversion records tracking revenue off the request path.
// Conversions are append-only; a later cancellation does not undo them.
func (s *Service) attributeConversion(booking *bookingdomain.Booking) {
	if booking.TrackingCode == nil {
		return
	}
	code := *booking.TrackingCode
	revenue := booking.Amount
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), attributionTimeout)
		defer cancel()
		if err := s.tracking.RecordConversion(ctx, code, revenue); err != nil {
			s.log.Warn("conversion attribution failed",
				zap.String("tracking_code", code),
				zap.Error(err),
			)
		}
	}()
}

// enroll creates the subscription backing a recurring or pack booking. The
// booking row is patched with the subscription id after the fact; a failure
// here leaves the booking valid and is retried on the next purchase.
func (s *Service) enroll(ctx context.Context, booking *bookingdomain.Booking, session *availabilitydomain.ClassSession, req bookingdomain.ConfirmRequest) {
	if req.SubscriptionID != nil {
		return
	}
	if req.Selection.Type != pricingdomain.BookingTypeRecurring && req.Selection.Type != pricingdomain.BookingTypePack {
		return
	}

	sub, err := s.subscription.EnsureForBooking(ctx, subscriptiondomain.EnsureRequest{
		StudioID:    session.StudioID,
		ClientID:    req.ClientID,
		ClassTypeID: session.ClassTypeID,
		Type:        req.Selection.Type,
		PackSize:    req.Selection.PackSize,
		AutoRenew:   req.Selection.AutoRenew,
		PaymentID:   req.PaymentID,
	})
	if err != nil {
		s.log.Error("subscription enrollment failed",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
		return
	}

	booking.SubscriptionID = &sub.ID
	err = s.db.WithContext(ctx).
		Model(&bookingdomain.Booking{}).
		Where("id = ?", booking.ID).
		Update("subscription_id", sub.ID).Error
	if err != nil {
		s.log.Warn("booking subscription link failed",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
	}
}

// ConfirmFromPayment drives confirmation from a settled webhook event using
// the selection captured at hold time.
func (s *Service) ConfirmFromPayment(ctx context.Context, payment *paymentdomain.Payment) (*bookingdomain.Booking, error) {
	clientID, sessionID, sel, trackingCode, err := bookingdomain.SelectionFromMetadata(payment.Metadata)
	if err != nil {
		return nil, err
	}
	pid := payment.ID
	return s.Confirm(ctx, bookingdomain.ConfirmRequest{
		ClientID:       clientID,
		ClassSessionID: sessionID,
		Selection:      sel,
		PaymentID:      &pid,
		TrackingCode:   trackingCode,
		Amount:         payment.Amount,
	})
}

func (s *Service) Cancel(ctx context.Context, bookingID snowflake.ID, clientID string) (*bookingdomain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.ClientID != clientID {
		return nil, bookingdomain.ErrBookingNotFound
	}
	if booking.Status == bookingdomain.BookingStatusCancelled {
		return booking, nil
	}
	if booking.Status != bookingdomain.BookingStatusConfirmed {
		return nil, bookingdomain.ErrNotCancellable
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.UpdateStatus(ctx, tx, bookingID,
			[]bookingdomain.BookingStatus{bookingdomain.BookingStatusConfirmed},
			bookingdomain.BookingStatusCancelled,
			s.clock.Now(),
		)
		if err != nil {
			return err
		}
		if rows == 0 {
			return bookingdomain.ErrNotCancellable
		}
		return s.sessions.ReleaseSeat(ctx, tx, booking.ClassSessionID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("booking cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.String("class_session_id", booking.ClassSessionID.String()),
	)
	return s.repo.FindByID(ctx, s.db, bookingID)
}

func (s *Service) Get(ctx context.Context, bookingID snowflake.ID) (*bookingdomain.Booking, error) {
	return s.repo.FindByID(ctx, s.db, bookingID)
}

func (s *Service) GetByPaymentID(ctx context.Context, paymentID snowflake.ID) (*bookingdomain.Booking, error) {
	return s.repo.FindByPaymentID(ctx, s.db, paymentID)
}

func (s *Service) CompletePastBookings(ctx context.Context, limit int) (int64, error) {
	return s.repo.MarkCompleted(ctx, s.db, s.clock.Now(), limit)
}

func validateSelection(sel bookingdomain.Selection) error {
	switch sel.Type {
	case pricingdomain.BookingTypeSingle, pricingdomain.BookingTypeRecurring:
		return nil
	case pricingdomain.BookingTypePack:
		if sel.PackSize < 1 {
			return pricingdomain.ErrInvalidPackSize
		}
		return nil
	default:
		return pricingdomain.ErrInvalidBookingType
	}
}
