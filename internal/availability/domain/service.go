package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/slotline/slotline/pkg/db/pagination"
)

var (
	ErrSessionNotFound  = errors.New("class session not found")
	ErrSessionFull      = errors.New("class session is full")
	ErrSessionNotOpen   = errors.New("class session is not open for booking")
	ErrInvalidSlotQuery = errors.New("invalid slot query")
)

// FindSlotsRequest filters the upcoming session search. StudioID is required;
// everything else narrows the result.
type FindSlotsRequest struct {
	StudioID     snowflake.ID
	LocationID   *snowflake.ID
	ClassTypeID  *snowflake.ID
	InstructorID *snowflake.ID
	From         *time.Time
	To           *time.Time
	IncludeFull  bool

	pagination.Pagination
}

// FindSlotsResponse carries one page of matching slots.
type FindSlotsResponse struct {
	Slots    []*Slot              `json:"slots"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// Service resolves bookable slots.
type Service interface {
	FindSlots(ctx context.Context, req FindSlotsRequest) (*FindSlotsResponse, error)
	GetSession(ctx context.Context, id snowflake.ID) (*ClassSession, error)
}
