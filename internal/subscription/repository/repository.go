package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, studioID snowflake.ID, clientID string, classTypeID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("studio_id = ? AND client_id = ? AND class_type_id = ? AND status = ?",
			studioID, clientID, classTypeID, subscriptiondomain.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) ListForClient(ctx context.Context, db *gorm.DB, studioID snowflake.ID, clientID string) ([]*subscriptiondomain.Subscription, error) {
	var subs []*subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("studio_id = ? AND client_id = ?", studioID, clientID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) ConsumeCredit(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET pack_remaining = pack_remaining - 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND pack_remaining > 0`,
		id,
		subscriptiondomain.SubscriptionStatusActive,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) SetRenewalPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET renewal_payment_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND renewal_payment_id IS NULL`,
		paymentID,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ClearFailedRenewals(ctx context.Context, db *gorm.DB, limit int) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET renewal_payment_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (
			SELECT s.id FROM subscriptions s
			JOIN payments p ON p.id = s.renewal_payment_id
			WHERE p.status IN ('VOIDED', 'FAILED')
			LIMIT ?
		)`,
		limit,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []subscriptiondomain.SubscriptionStatus, to subscriptiondomain.SubscriptionStatus, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": now.UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repo) ApplyRenewal(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID snowflake.ID, periodEnd time.Time, packRefill int) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET current_period_end = ?,
			pack_remaining = CASE WHEN ? > 0 THEN ? ELSE pack_remaining END,
			last_payment_id = ?,
			renewal_payment_id = NULL,
			status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND (last_payment_id IS NULL OR last_payment_id <> ?)`,
		periodEnd.UTC(),
		packRefill,
		packRefill,
		paymentID,
		subscriptiondomain.SubscriptionStatusActive,
		id,
		paymentID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ExpireDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (
			SELECT id FROM subscriptions
			WHERE status IN ? AND current_period_end < ?
			AND NOT (status = ? AND auto_renew)
			ORDER BY current_period_end ASC
			LIMIT ?
		)`,
		subscriptiondomain.SubscriptionStatusExpired,
		[]subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.SubscriptionStatusActive,
			subscriptiondomain.SubscriptionStatusCancelRequested,
		},
		now.UTC(),
		subscriptiondomain.SubscriptionStatusActive,
		limit,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) FindRenewablePacks(ctx context.Context, db *gorm.DB, limit int) ([]*subscriptiondomain.Subscription, error) {
	var subs []*subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("type = ? AND status = ? AND auto_renew = ? AND pack_remaining = 0 AND renewal_payment_id IS NULL",
			pricingdomain.BookingTypePack, subscriptiondomain.SubscriptionStatusActive, true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) FindRenewableRecurring(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*subscriptiondomain.Subscription, error) {
	var subs []*subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("type = ? AND status = ? AND auto_renew = ? AND current_period_end < ? AND renewal_payment_id IS NULL",
			pricingdomain.BookingTypeRecurring, subscriptiondomain.SubscriptionStatusActive, true, now.UTC()).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
