package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/slotline/slotline/internal/clock"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pack credits stay bookable for a year from purchase or renewal.
const packValidityDays = 365

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) EnsureForBooking(ctx context.Context, req subscriptiondomain.EnsureRequest) (*subscriptiondomain.Subscription, error) {
	existing, err := s.repo.FindActive(ctx, s.db, req.StudioID, req.ClientID, req.ClassTypeID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	sub := &subscriptiondomain.Subscription{
		ID:          s.genID.Generate(),
		StudioID:    req.StudioID,
		ClientID:    req.ClientID,
		ClassTypeID: req.ClassTypeID,
		Type:        req.Type,
		Interval:    req.Interval,
		Status:      subscriptiondomain.SubscriptionStatusActive,
		AutoRenew:   req.AutoRenew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch req.Type {
	case pricingdomain.BookingTypeRecurring:
		interval := req.Interval
		if interval == "" {
			interval = subscriptiondomain.IntervalMonthly
		}
		sub.Interval = interval
		end, err := periodEnd(now, interval)
		if err != nil {
			return nil, err
		}
		sub.CurrentPeriodEnd = end
	case pricingdomain.BookingTypePack:
		if req.PackSize < 1 {
			return nil, pricingdomain.ErrInvalidPackSize
		}
		size := req.PackSize
		remaining := size - 1 // the enrolling booking consumes one credit
		sub.PackSize = &size
		sub.PackRemaining = &remaining
		sub.CurrentPeriodEnd = now.AddDate(0, 0, packValidityDays)
	default:
		return nil, pricingdomain.ErrInvalidBookingType
	}

	if req.PaymentID != nil {
		pid := *req.PaymentID
		sub.LastPaymentID = &pid
	}

	if err := s.repo.Insert(ctx, s.db, sub); err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("studio_id", sub.StudioID.String()),
		zap.String("type", string(sub.Type)),
	)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) ListForClient(ctx context.Context, studioID snowflake.ID, clientID string) ([]*subscriptiondomain.Subscription, error) {
	return s.repo.ListForClient(ctx, s.db, studioID, clientID)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID, clientID string) (*subscriptiondomain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub.ClientID != clientID {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	switch sub.Status {
	case subscriptiondomain.SubscriptionStatusCancelRequested:
		return sub, nil
	case subscriptiondomain.SubscriptionStatusExpired:
		return nil, subscriptiondomain.ErrSubscriptionInactive
	}

	rows, err := s.repo.Transition(ctx, s.db, id,
		[]subscriptiondomain.SubscriptionStatus{subscriptiondomain.SubscriptionStatusActive},
		subscriptiondomain.SubscriptionStatusCancelRequested,
		s.clock.Now(),
	)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, subscriptiondomain.ErrSubscriptionInactive
	}

	s.log.Info("subscription cancel requested",
		zap.String("subscription_id", id.String()),
	)
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) HasAccess(ctx context.Context, id snowflake.ID) (bool, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return false, err
	}
	return sub.HasAccess(s.clock.Now()), nil
}

func (s *Service) ApplyRenewal(ctx context.Context, req subscriptiondomain.RenewalRequest) (*subscriptiondomain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	var end time.Time
	if sub.IsPack() {
		end = s.clock.Now().AddDate(0, 0, packValidityDays)
	} else {
		end, err = periodEnd(maxTime(sub.CurrentPeriodEnd, s.clock.Now()), sub.Interval)
		if err != nil {
			return nil, err
		}
	}

	rows, err := s.repo.ApplyRenewal(ctx, s.db, req.SubscriptionID, req.PaymentID, end, req.PackRefill)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, subscriptiondomain.ErrRenewalAlreadyApplied
	}

	s.log.Info("subscription renewed",
		zap.String("subscription_id", req.SubscriptionID.String()),
		zap.String("payment_id", req.PaymentID.String()),
	)
	return s.repo.FindByID(ctx, s.db, req.SubscriptionID)
}

func (s *Service) ExpireDue(ctx context.Context, limit int) (int64, error) {
	return s.repo.ExpireDue(ctx, s.db, s.clock.Now(), limit)
}

func (s *Service) FindRenewablePacks(ctx context.Context, limit int) ([]*subscriptiondomain.Subscription, error) {
	return s.repo.FindRenewablePacks(ctx, s.db, limit)
}

func (s *Service) FindRenewableRecurring(ctx context.Context, limit int) ([]*subscriptiondomain.Subscription, error) {
	return s.repo.FindRenewableRecurring(ctx, s.db, s.clock.Now(), limit)
}

func (s *Service) BeginRenewal(ctx context.Context, id snowflake.ID, paymentID snowflake.ID) error {
	rows, err := s.repo.SetRenewalPayment(ctx, s.db, id, paymentID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscriptiondomain.ErrRenewalInFlight
	}
	return nil
}

func periodEnd(from time.Time, interval subscriptiondomain.Interval) (time.Time, error) {
	switch interval {
	case subscriptiondomain.IntervalMonthly:
		return from.AddDate(0, 1, 0), nil
	case subscriptiondomain.IntervalYearly:
		return from.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, subscriptiondomain.ErrInvalidInterval
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
