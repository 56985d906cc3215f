package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	"github.com/slotline/slotline/internal/clock"
	"github.com/slotline/slotline/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 250
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock clock.Clock
	repo  availabilitydomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  availabilitydomain.Repository
}

func NewService(p ServiceParam) availabilitydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("availability.service"),

		clock: p.Clock,
		repo:  p.Repo,
	}
}

// FindSlots implements domain.Service. Unsatisfiable filters yield an empty
// page rather than an error.
func (s *Service) FindSlots(ctx context.Context, req availabilitydomain.FindSlotsRequest) (*availabilitydomain.FindSlotsResponse, error) {
	empty := &availabilitydomain.FindSlotsResponse{
		Slots:    []*availabilitydomain.Slot{},
		PageInfo: &pagination.PageInfo{HasMore: false},
	}

	if req.StudioID == 0 {
		return empty, nil
	}
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return empty, nil
	}

	if req.From == nil {
		now := s.clock.Now()
		req.From = &now
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	slots, err := s.repo.FindSlots(ctx, s.db, req, limit+1)
	if err != nil {
		return nil, err
	}

	pageInfo, slots := pagination.BuildCursorPageInfo(slots, limit, func(slot *availabilitydomain.Slot) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:       slot.SessionID.String(),
			StartsAt: slot.StartsAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	return &availabilitydomain.FindSlotsResponse{
		Slots:    slots,
		PageInfo: pageInfo,
	}, nil
}

// GetSession implements domain.Service.
func (s *Service) GetSession(ctx context.Context, id snowflake.ID) (*availabilitydomain.ClassSession, error) {
	return s.repo.FindSession(ctx, s.db, id)
}
