package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*Booking, error)

	// UpdateStatus transitions a booking only when its current status is in
	// from, returning the number of rows changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []BookingStatus, to BookingStatus, now time.Time) (int64, error)

	// MarkCompleted flips confirmed bookings of sessions ended before cutoff.
	MarkCompleted(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) (int64, error)
}
