package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindActive(ctx context.Context, db *gorm.DB, studioID snowflake.ID, clientID string, classTypeID snowflake.ID) (*Subscription, error)
	ListForClient(ctx context.Context, db *gorm.DB, studioID snowflake.ID, clientID string) ([]*Subscription, error)

	// ConsumeCredit decrements one pack credit, guarded so it never goes
	// below zero. Zero rows affected means no credit was available.
	ConsumeCredit(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)

	// Transition moves the subscription between statuses conditionally.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []SubscriptionStatus, to SubscriptionStatus, now time.Time) (int64, error)

	// ApplyRenewal extends the period and refills credits only when the
	// payment has not been applied before.
	ApplyRenewal(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID snowflake.ID, periodEnd time.Time, packRefill int) (int64, error)

	ExpireDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
	FindRenewablePacks(ctx context.Context, db *gorm.DB, limit int) ([]*Subscription, error)
	FindRenewableRecurring(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Subscription, error)

	// SetRenewalPayment marks a renewal hold in flight. It only succeeds
	// when no other renewal is pending, so the sweep never double-charges.
	SetRenewalPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID snowflake.ID) (int64, error)

	// ClearFailedRenewals unblocks subscriptions whose renewal hold was
	// voided or failed so the next sweep can retry.
	ClearFailedRenewals(ctx context.Context, db *gorm.DB, limit int) (int64, error)
}
