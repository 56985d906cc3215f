package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	"github.com/slotline/slotline/pkg/db/option"
	"github.com/slotline/slotline/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	studioRepo     repository.Repository[catalogdomain.Studio]
	classTypeRepo  repository.Repository[catalogdomain.ClassType]
	locationRepo   repository.Repository[catalogdomain.Location]
	instructorRepo repository.Repository[catalogdomain.Instructor]
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p ServiceParam) catalogdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("catalog.service"),

		studioRepo:     repository.ProvideStore[catalogdomain.Studio](p.DB),
		classTypeRepo:  repository.ProvideStore[catalogdomain.ClassType](p.DB),
		locationRepo:   repository.ProvideStore[catalogdomain.Location](p.DB),
		instructorRepo: repository.ProvideStore[catalogdomain.Instructor](p.DB),
	}
}

// GetStudio implements domain.Service.
func (s *Service) GetStudio(ctx context.Context, id snowflake.ID) (*catalogdomain.Studio, error) {
	studio, err := s.studioRepo.FindOne(ctx, &catalogdomain.Studio{ID: id})
	if err != nil {
		return nil, err
	}
	if studio == nil {
		return nil, catalogdomain.ErrStudioNotFound
	}
	return studio, nil
}

// GetStudioBySlug implements domain.Service.
func (s *Service) GetStudioBySlug(ctx context.Context, slug string) (*catalogdomain.Studio, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, catalogdomain.ErrStudioNotFound
	}
	studio, err := s.studioRepo.FindOne(ctx, &catalogdomain.Studio{Slug: slug})
	if err != nil {
		return nil, err
	}
	if studio == nil {
		return nil, catalogdomain.ErrStudioNotFound
	}
	return studio, nil
}

// GetClassType implements domain.Service.
func (s *Service) GetClassType(ctx context.Context, id snowflake.ID) (*catalogdomain.ClassType, error) {
	classType, err := s.classTypeRepo.FindOne(ctx, &catalogdomain.ClassType{ID: id})
	if err != nil {
		return nil, err
	}
	if classType == nil {
		return nil, catalogdomain.ErrClassTypeNotFound
	}
	return classType, nil
}

// ListLocations implements domain.Service.
func (s *Service) ListLocations(ctx context.Context, studioID snowflake.ID) ([]*catalogdomain.Location, error) {
	return s.locationRepo.Find(ctx, &catalogdomain.Location{StudioID: studioID}, option.WithOrder("name ASC"))
}

// ListInstructors implements domain.Service.
func (s *Service) ListInstructors(ctx context.Context, studioID snowflake.ID) ([]*catalogdomain.Instructor, error) {
	return s.instructorRepo.Find(ctx,
		&catalogdomain.Instructor{StudioID: studioID, Active: true},
		option.WithOrder("display_name ASC"),
	)
}
