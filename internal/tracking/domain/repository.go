package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository owns tracking_attributions persistence. Increments are
// single-statement upserts so concurrent writers never lose counts.
type Repository interface {
	IncrementClicks(ctx context.Context, db *gorm.DB, code string) error
	IncrementConversion(ctx context.Context, db *gorm.DB, code string, revenue int64) error
	Find(ctx context.Context, db *gorm.DB, code string) (*TrackingAttribution, error)
}
