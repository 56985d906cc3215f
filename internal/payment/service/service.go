package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	"github.com/slotline/slotline/internal/clock"
	"github.com/slotline/slotline/internal/config"
	"github.com/slotline/slotline/internal/observability/metrics"
	"github.com/slotline/slotline/internal/payment/adapters"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     paymentdomain.Repository
	catalog  catalogdomain.Service
	metrics  *metrics.Metrics
	provider string
	adapter  paymentdomain.PaymentAdapter
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     paymentdomain.Repository
	Catalog  catalogdomain.Service
	Registry *adapters.Registry
	Metrics  *metrics.Metrics
}

func NewService(p ServiceParam) (paymentdomain.Service, error) {
	provider := strings.ToLower(strings.TrimSpace(p.Config.PaymentProvider))
	adapter, err := p.Registry.NewAdapter(provider, paymentdomain.AdapterConfig{
		Config: map[string]any{
			"api_key":        p.Config.PaymentAPIKey,
			"webhook_secret": p.Config.PaymentWebhookSecret,
		},
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		catalog:  p.Catalog,
		metrics:  p.Metrics,
		provider: provider,
		adapter:  adapter,
	}, nil
}

// CreateHold implements domain.Service. The processor call happens before
// any row is written so a processor failure leaves no partial state.
func (s *Service) CreateHold(ctx context.Context, req paymentdomain.CreateHoldRequest) (*paymentdomain.CreateHoldResponse, error) {
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	studio, err := s.catalog.GetStudio(ctx, req.StudioID)
	if err != nil {
		return nil, err
	}
	if !studio.PaymentsEnabled {
		return nil, paymentdomain.ErrPaymentsDisabled
	}
	if studio.MerchantAccountID == nil || strings.TrimSpace(*studio.MerchantAccountID) == "" {
		return nil, paymentdomain.ErrMerchantNotConfigured
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = studio.Currency
	}

	paymentID := s.genID.Generate()
	hold, err := s.adapter.CreateHold(ctx, paymentdomain.HoldRequest{
		PaymentID:         paymentID,
		MerchantAccountID: *studio.MerchantAccountID,
		Amount:            req.Amount,
		Currency:          currency,
	})
	if err != nil {
		s.log.Warn("processor hold failed",
			zap.String("provider", s.provider),
			zap.Int64("studio_id", int64(req.StudioID)),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.clock.Now()
	externalRef := hold.ExternalReference
	payment := &paymentdomain.Payment{
		ID:                paymentID,
		StudioID:          studio.ID,
		MerchantAccountID: *studio.MerchantAccountID,
		Amount:            req.Amount,
		Currency:          currency,
		Status:            paymentdomain.PaymentStatusCreated,
		Provider:          s.provider,
		ExternalReference: &externalRef,
		ClientSecret:      hold.ClientSecret,
		Metadata:          req.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, s.db, payment); err != nil {
		return nil, err
	}

	s.log.Info("payment hold created",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.Int64("studio_id", int64(studio.ID)),
		zap.Int64("amount", payment.Amount),
		zap.String("currency", payment.Currency),
	)

	return &paymentdomain.CreateHoldResponse{
		PaymentID:         payment.ID,
		ClientSecret:      payment.ClientSecret,
		MerchantAccountID: payment.MerchantAccountID,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
	}, nil
}

// VoidHold implements domain.Service. Voiding an already voided payment is
// a no-op so compensation paths can retry safely.
func (s *Service) VoidHold(ctx context.Context, paymentID snowflake.ID, reason string) error {
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return err
	}

	switch payment.Status {
	case paymentdomain.PaymentStatusVoided:
		return nil
	case paymentdomain.PaymentStatusSucceeded, paymentdomain.PaymentStatusFailed:
		return paymentdomain.ErrInvalidTransition
	}

	if payment.ExternalReference != nil {
		if err := s.adapter.VoidHold(ctx, *payment.ExternalReference); err != nil {
			return err
		}
	}

	changed, err := s.repo.Transition(ctx, s.db, payment.ID,
		[]paymentdomain.PaymentStatus{paymentdomain.PaymentStatusCreated, paymentdomain.PaymentStatusAuthorized},
		paymentdomain.PaymentStatusVoided,
		nil,
	)
	if err != nil {
		return err
	}
	if changed {
		s.metrics.RecordHoldVoided(ctx, reason)
		s.log.Info("payment hold voided",
			zap.Int64("payment_id", int64(payment.ID)),
			zap.String("reason", reason),
		)
	}
	return nil
}

// GetPayment implements domain.Service.
func (s *Service) GetPayment(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

// ProcessEvent implements domain.Service. Deliveries are deduplicated on
// (provider, provider_event_id); replays surface ErrEventAlreadyProcessed.
func (s *Service) ProcessEvent(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.ProcessEventResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != s.provider {
		return nil, paymentdomain.ErrProviderNotFound
	}

	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		return nil, err
	}
	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		return nil, err
	}

	payment, err := s.repo.FindByExternalReference(ctx, s.db, provider, event.ProviderPaymentID)
	if err != nil {
		return nil, err
	}

	paymentID := payment.ID
	inserted, err := s.repo.InsertEvent(ctx, s.db, &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		Type:            string(event.Type),
		PaymentID:       &paymentID,
		ReceivedAt:      s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, paymentdomain.ErrEventAlreadyProcessed
	}

	from, to, ok := transitionForEvent(event.Type)
	changed := false
	if ok {
		changed, err = s.repo.Transition(ctx, s.db, payment.ID, from, to, nil)
		if err != nil {
			return nil, err
		}
	}

	s.metrics.RecordPaymentEvent(ctx, provider, string(event.Type))

	payment, err = s.repo.FindByID(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.ProcessEventResult{
		Payment:       payment,
		EventType:     event.Type,
		StatusChanged: changed,
	}, nil
}

// VoidStaleHolds implements domain.Service. Used by the sweep job for
// holds with no confirmation inside the policy window.
func (s *Service) VoidStaleHolds(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.repo.FindStaleHolds(ctx, s.db, cutoff, limit)
	if err != nil {
		return 0, err
	}

	voided := 0
	for _, payment := range stale {
		if err := s.VoidHold(ctx, payment.ID, "hold_timeout"); err != nil {
			if errors.Is(err, paymentdomain.ErrInvalidTransition) {
				continue
			}
			return voided, err
		}
		voided++
	}
	return voided, nil
}

func transitionForEvent(eventType paymentdomain.EventType) ([]paymentdomain.PaymentStatus, paymentdomain.PaymentStatus, bool) {
	switch eventType {
	case paymentdomain.EventTypeAuthorized:
		return []paymentdomain.PaymentStatus{paymentdomain.PaymentStatusCreated},
			paymentdomain.PaymentStatusAuthorized, true
	case paymentdomain.EventTypeSucceeded:
		return []paymentdomain.PaymentStatus{paymentdomain.PaymentStatusCreated, paymentdomain.PaymentStatusAuthorized},
			paymentdomain.PaymentStatusSucceeded, true
	case paymentdomain.EventTypeFailed:
		return []paymentdomain.PaymentStatus{paymentdomain.PaymentStatusCreated, paymentdomain.PaymentStatusAuthorized},
			paymentdomain.PaymentStatusFailed, true
	case paymentdomain.EventTypeVoided:
		return []paymentdomain.PaymentStatus{paymentdomain.PaymentStatusCreated, paymentdomain.PaymentStatusAuthorized},
			paymentdomain.PaymentStatusVoided, true
	}
	return nil, "", false
}
