// Package domain contains subscription models and lifecycle contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive          SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelRequested SubscriptionStatus = "CANCEL_REQUESTED"
	SubscriptionStatusExpired         SubscriptionStatus = "EXPIRED"
)

type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// Subscription covers both recurring memberships and class packs. For packs
// PackSize and PackRemaining are set and CurrentPeriodEnd bounds the credit
// validity window. LastPaymentID makes renewal application idempotent.
type Subscription struct {
	ID               snowflake.ID              `gorm:"primaryKey"`
	StudioID         snowflake.ID              `gorm:"not null;index"`
	ClientID         string                    `gorm:"type:text;not null;index:idx_subscriptions_client"`
	ClassTypeID      snowflake.ID              `gorm:"not null"`
	Type             pricingdomain.BookingType `gorm:"type:text;not null"`
	Interval         Interval                  `gorm:"type:text;not null;default:monthly"`
	Status           SubscriptionStatus        `gorm:"type:text;not null;index"`
	CurrentPeriodEnd time.Time                 `gorm:"not null"`
	PackSize         *int                      `gorm:""`
	PackRemaining    *int                      `gorm:""`
	AutoRenew        bool                      `gorm:"not null;default:false"`
	LastPaymentID    *snowflake.ID             `gorm:""`
	RenewalPaymentID *snowflake.ID             `gorm:""`
	CreatedAt        time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// HasAccess reports whether the subscription grants access at the given
// instant. A cancel request keeps access until the paid period ends.
func (s *Subscription) HasAccess(at time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusCancelRequested:
		return at.Before(s.CurrentPeriodEnd)
	default:
		return false
	}
}

// IsPack reports whether the subscription is credit-based.
func (s *Subscription) IsPack() bool {
	return s.Type == pricingdomain.BookingTypePack
}
