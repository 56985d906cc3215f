package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository owns class_sessions persistence, including the conditional
// seat claim used by booking confirmation.
type Repository interface {
	FindSlots(ctx context.Context, db *gorm.DB, req FindSlotsRequest, limit int) ([]*Slot, error)
	FindSession(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ClassSession, error)

	// ClaimSeat increments booked_count only while capacity remains. It
	// returns ErrSessionFull when no seat could be claimed.
	ClaimSeat(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error
	// ReleaseSeat decrements booked_count, never below zero.
	ReleaseSeat(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error

	// CompletePastSessions marks scheduled sessions that ended before the
	// cutoff as completed and returns how many rows changed.
	CompletePastSessions(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) (int64, error)
}
