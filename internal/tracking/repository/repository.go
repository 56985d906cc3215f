package repository

import (
	"context"
	"errors"

	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() trackingdomain.Repository {
	return &repo{}
}

func (r *repo) IncrementClicks(ctx context.Context, db *gorm.DB, code string) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tracking_attributions (code, clicks, conversions, revenue, created_at, updated_at)
		VALUES (?, 1, 0, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (code) DO UPDATE SET
			clicks = tracking_attributions.clicks + 1,
			updated_at = CURRENT_TIMESTAMP`,
		code,
	).Error
}

func (r *repo) IncrementConversion(ctx context.Context, db *gorm.DB, code string, revenue int64) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tracking_attributions (code, clicks, conversions, revenue, created_at, updated_at)
		VALUES (?, 0, 1, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (code) DO UPDATE SET
			conversions = tracking_attributions.conversions + 1,
			revenue = tracking_attributions.revenue + ?,
			updated_at = CURRENT_TIMESTAMP`,
		code,
		revenue,
		revenue,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, code string) (*trackingdomain.TrackingAttribution, error) {
	var attribution trackingdomain.TrackingAttribution
	err := db.WithContext(ctx).Where("code = ?", code).First(&attribution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, trackingdomain.ErrCodeNotFound
		}
		return nil, err
	}
	return &attribution, nil
}
