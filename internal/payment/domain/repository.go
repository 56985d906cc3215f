package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository owns payments and payment_events persistence. Status changes
// go through conditional updates so concurrent webhooks cannot regress a
// terminal state.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByExternalReference(ctx context.Context, db *gorm.DB, provider, externalReference string) (*Payment, error)

	// Transition moves the payment from any of the given statuses to the
	// target and reports whether a row changed.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []PaymentStatus, to PaymentStatus, externalReference *string) (bool, error)

	// InsertEvent records a processor event; the second return is false
	// when (provider, provider_event_id) was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	FindStaleHolds(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*Payment, error)
}
