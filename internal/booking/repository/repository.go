package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() bookingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *bookingdomain.Booking) error {
	return db.WithContext(ctx).Create(booking).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*bookingdomain.Booking, error) {
	var booking bookingdomain.Booking
	err := db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingdomain.ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*bookingdomain.Booking, error) {
	var booking bookingdomain.Booking
	err := db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingdomain.ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []bookingdomain.BookingStatus, to bookingdomain.BookingStatus, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&bookingdomain.Booking{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": now.UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (
			SELECT b.id FROM bookings b
			JOIN class_sessions cs ON cs.id = b.class_session_id
			WHERE b.status = ? AND cs.ends_at < ?
			ORDER BY cs.ends_at ASC
			LIMIT ?
		)`,
		bookingdomain.BookingStatusCompleted,
		bookingdomain.BookingStatusConfirmed,
		cutoff.UTC(),
		limit,
	)
	return result.RowsAffected, result.Error
}
