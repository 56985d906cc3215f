package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentdomain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repo) FindByExternalReference(ctx context.Context, db *gorm.DB, provider, externalReference string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := db.WithContext(ctx).
		Where("provider = ? AND external_reference = ?", provider, externalReference).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentdomain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []paymentdomain.PaymentStatus, to paymentdomain.PaymentStatus, externalReference *string) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if externalReference != nil {
		updates["external_reference"] = *externalReference
	}
	switch to {
	case paymentdomain.PaymentStatusAuthorized:
		updates["authorized_at"] = time.Now().UTC()
	case paymentdomain.PaymentStatusVoided:
		updates["voided_at"] = time.Now().UTC()
	}

	result := db.WithContext(ctx).
		Model(&paymentdomain.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, record *paymentdomain.EventRecord) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (id, provider, provider_event_id, type, payment_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		record.ID,
		record.Provider,
		record.ProviderEventID,
		record.Type,
		record.PaymentID,
		record.ReceivedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ? WHERE id = ?`,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) FindStaleHolds(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*paymentdomain.Payment, error) {
	var payments []*paymentdomain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payments p
		WHERE p.status IN (?, ?) AND p.created_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.payment_id = p.id AND b.status IN ('CONFIRMED', 'COMPLETED')
		)
		ORDER BY p.created_at ASC
		LIMIT ?`,
		paymentdomain.PaymentStatusCreated,
		paymentdomain.PaymentStatusAuthorized,
		cutoff.UTC(),
		limit,
	).Scan(&payments).Error
	return payments, err
}
