// Package scheduler runs the periodic maintenance sweeps: voiding stale
// payment holds, completing past sessions, expiring subscriptions and
// replenishing exhausted auto-renew packs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	"github.com/slotline/slotline/internal/clock"
	"github.com/slotline/slotline/internal/config"
	obsmetrics "github.com/slotline/slotline/internal/observability/metrics"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	"github.com/slotline/slotline/internal/ratelimit"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

const leaderLockKey = "scheduler:leader"

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Policy          *config.PolicyHolder
	PaymentSvc      paymentdomain.Service
	BookingSvc      bookingdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	CatalogSvc      catalogdomain.Service
	PricingSvc      pricingdomain.Service
	Sessions        availabilitydomain.Repository
	SubRepo         subscriptiondomain.Repository
	Locker          *ratelimit.Locker `optional:"true"`
	Config          Config            `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	policy          *config.PolicyHolder
	paymentSvc      paymentdomain.Service
	bookingSvc      bookingdomain.Service
	subscriptionSvc subscriptiondomain.Service
	catalogSvc      catalogdomain.Service
	pricingSvc      pricingdomain.Service
	sessions        availabilitydomain.Repository
	subRepo         subscriptiondomain.Repository
	locker          *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Policy == nil ||
		p.PaymentSvc == nil || p.BookingSvc == nil || p.SubscriptionSvc == nil ||
		p.CatalogSvc == nil || p.PricingSvc == nil || p.Sessions == nil || p.SubRepo == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		policy:          p.Policy,
		paymentSvc:      p.PaymentSvc,
		bookingSvc:      p.BookingSvc,
		subscriptionSvc: p.SubscriptionSvc,
		catalogSvc:      p.CatalogSvc,
		pricingSvc:      p.PricingSvc,
		sessions:        p.Sessions,
		subRepo:         p.SubRepo,
		locker:          p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		schedMetrics.IncJobError(name, err)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	release, ok := s.acquireLeader(parent)
	if !ok {
		return nil
	}
	defer release()

	var err error
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"void_stale_holds", s.VoidStaleHoldsJob},
		{"complete_past_sessions", s.CompletePastSessionsJob},
		{"expire_subscriptions", s.ExpireSubscriptionsJob},
		{"replenish_packs", s.ReplenishPacksJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

// acquireLeader keeps concurrent instances from running the same sweep.
// Without redis the lock degrades to a no-op single-instance mode.
func (s *Scheduler) acquireLeader(ctx context.Context) (func(), bool) {
	if s.cfg.DisableLeaderLock || s.locker == nil {
		return func() {}, true
	}
	token, ok, err := s.locker.TryLock(ctx, leaderLockKey, s.cfg.LeaderLockTTL)
	if err != nil {
		s.log.Warn("leader lock unavailable, running anyway", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.Background(), leaderLockKey, token); err != nil {
			s.log.Warn("leader lock release failed", zap.Error(err))
		}
	}, true
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) batchSize() int {
	if size := s.policy.Get().SchedulerBatchSize; size > 0 {
		return size
	}
	return s.cfg.BatchSize
}

// VoidStaleHoldsJob voids holds that never settled within the hold timeout.
func (s *Scheduler) VoidStaleHoldsJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.policy.Get().HoldTimeout())
	voided, err := s.paymentSvc.VoidStaleHolds(ctx, cutoff, s.batchSize())
	if voided > 0 {
		obsmetrics.Scheduler().AddBatchProcessed("void_stale_holds", "payment", voided)
		s.log.Info("stale holds voided", zap.Int("count", voided))
	}
	return err
}

// CompletePastSessionsJob closes out sessions past their end time and the
// confirmed bookings attached to them.
func (s *Scheduler) CompletePastSessionsJob(ctx context.Context) error {
	now := s.clock.Now()
	batch := s.batchSize()

	bookings, err := s.bookingSvc.CompletePastBookings(ctx, batch)
	if err != nil {
		return err
	}
	sessions, err := s.sessions.CompletePastSessions(ctx, s.db, now, batch)
	if err != nil {
		return err
	}
	if bookings > 0 || sessions > 0 {
		obsmetrics.Scheduler().AddBatchProcessed("complete_past_sessions", "booking", int(bookings))
		obsmetrics.Scheduler().AddBatchProcessed("complete_past_sessions", "class_session", int(sessions))
		s.log.Info("past sessions completed",
			zap.Int64("sessions", sessions),
			zap.Int64("bookings", bookings),
		)
	}
	return nil
}

// ExpireSubscriptionsJob renews due auto-renew recurring subscriptions and
// moves the rest past their period end to EXPIRED. Renewal only opens the
// hold; the new period starts when the payment settles.
func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context) error {
	batch := s.batchSize()

	subs, err := s.subscriptionSvc.FindRenewableRecurring(ctx, batch)
	if err != nil {
		return err
	}
	var jobErr error
	for _, sub := range subs {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.openRenewalHold(ctx, sub); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		obsmetrics.Scheduler().AddBatchProcessed("expire_subscriptions", "renewal", 1)
	}

	expired, err := s.subscriptionSvc.ExpireDue(ctx, batch)
	if expired > 0 {
		obsmetrics.Scheduler().AddBatchProcessed("expire_subscriptions", "subscription", int(expired))
		s.log.Info("subscriptions expired", zap.Int64("count", expired))
	}
	return errors.Join(jobErr, err)
}

// ReplenishPacksJob opens a renewal hold for every exhausted auto-renew pack.
// The refill itself lands when the payment settles through the webhook
// pipeline; the in-flight marker keeps the sweep from double-charging.
func (s *Scheduler) ReplenishPacksJob(ctx context.Context) error {
	batch := s.batchSize()

	cleared, err := s.subRepo.ClearFailedRenewals(ctx, s.db, batch)
	if err != nil {
		return err
	}
	if cleared > 0 {
		s.log.Info("failed renewals cleared for retry", zap.Int64("count", cleared))
	}

	subs, err := s.subscriptionSvc.FindRenewablePacks(ctx, batch)
	if err != nil {
		return err
	}

	var jobErr error
	for _, sub := range subs {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.openRenewalHold(ctx, sub); err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		obsmetrics.Scheduler().AddBatchProcessed("replenish_packs", "subscription", 1)
	}
	return jobErr
}

func (s *Scheduler) openRenewalHold(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	refill := 0
	quoteReq := pricingdomain.QuoteRequest{BookingType: sub.Type}
	if sub.IsPack() {
		if sub.PackSize == nil || *sub.PackSize < 1 {
			return nil
		}
		refill = *sub.PackSize
		quoteReq.PackSize = refill
	}

	classType, err := s.catalogSvc.GetClassType(ctx, sub.ClassTypeID)
	if err != nil {
		return err
	}
	quoteReq.Price = classType.PriceAmount
	quote, err := s.pricingSvc.Quote(ctx, quoteReq)
	if err != nil {
		return err
	}

	hold, err := s.paymentSvc.CreateHold(ctx, paymentdomain.CreateHoldRequest{
		StudioID: sub.StudioID,
		Amount:   quote.Amount,
		Currency: classType.Currency,
		Metadata: map[string]any{
			subscriptiondomain.MetaRenewalSubscriptionID: sub.ID.String(),
			subscriptiondomain.MetaRenewalPackRefill:     fmt.Sprintf("%d", refill),
			bookingdomain.MetaClientID:                   sub.ClientID,
		},
	})
	if err != nil {
		// A misconfigured or free studio cannot renew; skip, do not fail
		// the whole sweep.
		if errors.Is(err, paymentdomain.ErrMerchantNotConfigured) || errors.Is(err, paymentdomain.ErrPaymentsDisabled) {
			s.log.Warn("renewal skipped",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	if err := s.subscriptionSvc.BeginRenewal(ctx, sub.ID, hold.PaymentID); err != nil {
		if errors.Is(err, subscriptiondomain.ErrRenewalInFlight) {
			// Another instance opened a renewal first; this hold is surplus.
			return s.paymentSvc.VoidHold(ctx, hold.PaymentID, "duplicate_renewal")
		}
		return err
	}

	s.log.Info("renewal hold opened",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("payment_id", hold.PaymentID.String()),
		zap.Int64("amount", quote.Amount),
	)
	return nil
}
