// Package domain contains booking models and the confirmation contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
)

// BookingStatus represents the booking lifecycle.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// Booking is a durable reservation of one seat in one class session.
// PaymentID is null for free-tier studios and unique otherwise, which is
// what makes confirmation idempotent per payment.
type Booking struct {
	ID             snowflake.ID              `gorm:"primaryKey"`
	StudioID       snowflake.ID              `gorm:"not null;index"`
	ClientID       string                    `gorm:"type:text;not null;index"`
	ClassSessionID snowflake.ID              `gorm:"not null;index"`
	Status         BookingStatus             `gorm:"type:text;not null"`
	BookingType    pricingdomain.BookingType `gorm:"type:text;not null"`
	PackSize       *int                      `gorm:""`
	AutoRenew      bool                      `gorm:"not null;default:false"`
	PaymentID      *snowflake.ID             `gorm:"uniqueIndex:idx_bookings_payment_id"`
	SubscriptionID *snowflake.ID             `gorm:"index"`
	TrackingCode   *string                   `gorm:"type:text"`
	Amount         int64                     `gorm:"not null;default:0"`
	CreatedAt      time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Booking) TableName() string { return "bookings" }

// Selection is the tagged commercial variant of a booking request,
// consumed uniformly by pricing and confirmation.
type Selection struct {
	Type      pricingdomain.BookingType `json:"type"`
	PackSize  int                       `json:"pack_size,omitempty"`
	AutoRenew bool                      `json:"auto_renew,omitempty"`
}
