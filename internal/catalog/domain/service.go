package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrStudioNotFound    = errors.New("studio not found")
	ErrClassTypeNotFound = errors.New("class type not found")
	ErrStudioInactive    = errors.New("studio payments disabled")
)

// Service resolves catalog entities for booking and payment flows.
type Service interface {
	GetStudio(ctx context.Context, id snowflake.ID) (*Studio, error)
	GetStudioBySlug(ctx context.Context, slug string) (*Studio, error)
	GetClassType(ctx context.Context, id snowflake.ID) (*ClassType, error)
	ListLocations(ctx context.Context, studioID snowflake.ID) ([]*Location, error)
	ListInstructors(ctx context.Context, studioID snowflake.ID) ([]*Instructor, error)
}
