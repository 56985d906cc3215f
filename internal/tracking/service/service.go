package service

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/slotline/slotline/internal/config"
	"github.com/slotline/slotline/internal/observability/metrics"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	repo    trackingdomain.Repository
	policy  *config.PolicyHolder
	dedup   deduper
	metrics *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    trackingdomain.Repository
	Policy  *config.PolicyHolder
	Redis   *redis.Client `optional:"true"`
	Metrics *metrics.Metrics
}

func NewService(p ServiceParam) trackingdomain.Service {
	var dedup deduper
	if p.Redis != nil {
		dedup = &redisDeduper{client: p.Redis}
	} else {
		dedup = newMemoryDeduper()
	}

	return &Service{
		db:  p.DB,
		log: p.Log.Named("tracking.service"),

		repo:    p.Repo,
		policy:  p.Policy,
		dedup:   dedup,
		metrics: p.Metrics,
	}
}

// RecordClick implements domain.Service. Malformed codes are dropped
// without error; repeat clicks inside the dedup window do not count.
func (s *Service) RecordClick(ctx context.Context, rawCode, sessionKey string) error {
	code, ok := trackingdomain.NormalizeCode(rawCode)
	if !ok {
		s.log.Debug("ignoring malformed tracking code", zap.String("code", rawCode))
		return nil
	}
	if sessionKey == "" {
		return nil
	}

	first, err := s.dedup.FirstSeen(ctx, code, sessionKey, s.policy.Get().ClickDedupWindow())
	if err != nil {
		// Dedup is best-effort; count the click rather than lose it.
		s.log.Warn("click dedup check failed", zap.Error(err))
		first = true
	}
	if !first {
		s.metrics.RecordTrackingClick(ctx, true)
		return nil
	}

	if err := s.repo.IncrementClicks(ctx, s.db, code); err != nil {
		return err
	}
	s.metrics.RecordTrackingClick(ctx, false)
	return nil
}

// RecordConversion implements domain.Service. Conversions are additive and
// never rolled back.
func (s *Service) RecordConversion(ctx context.Context, rawCode string, revenue int64) error {
	code, ok := trackingdomain.NormalizeCode(rawCode)
	if !ok {
		s.log.Debug("ignoring malformed tracking code", zap.String("code", rawCode))
		return nil
	}
	if revenue < 0 {
		revenue = 0
	}

	return s.repo.IncrementConversion(ctx, s.db, code, revenue)
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, rawCode string) (*trackingdomain.TrackingAttribution, error) {
	code, ok := trackingdomain.NormalizeCode(rawCode)
	if !ok {
		return nil, trackingdomain.ErrCodeNotFound
	}
	return s.repo.Find(ctx, s.db, code)
}
