// Package domain contains payment hold models and the processor adapter
// contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentStatus represents the authorization lifecycle of a hold.
type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "CREATED"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusVoided     PaymentStatus = "VOIDED"
)

// Payment is a hold against one studio's merchant sub-account. Exactly one
// payment maps to one booking attempt; it is never reused.
type Payment struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	StudioID          snowflake.ID      `gorm:"not null;index"`
	MerchantAccountID string            `gorm:"type:text;not null"`
	Amount            int64             `gorm:"not null"`
	Currency          string            `gorm:"type:text;not null"`
	Status            PaymentStatus     `gorm:"type:text;not null"`
	Provider          string            `gorm:"type:text;not null"`
	ExternalReference *string           `gorm:"type:text;index"`
	ClientSecret      string            `gorm:"type:text;not null"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	AuthorizedAt      *time.Time        `gorm:""`
	VoidedAt          *time.Time        `gorm:""`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// IsTerminal reports whether no further transitions are allowed.
func (p Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusVoided:
		return true
	}
	return false
}

// EventRecord stores one inbound processor event for idempotent handling.
// (provider, provider_event_id) is unique.
type EventRecord struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	Provider        string        `gorm:"type:text;not null;uniqueIndex:idx_payment_events_provider_event"`
	ProviderEventID string        `gorm:"type:text;not null;uniqueIndex:idx_payment_events_provider_event"`
	Type            string        `gorm:"type:text;not null"`
	PaymentID       *snowflake.ID `gorm:"index"`
	ReceivedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ProcessedAt     *time.Time    `gorm:""`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }

// EventType classifies a parsed processor event.
type EventType string

const (
	EventTypeAuthorized EventType = "payment.authorized"
	EventTypeSucceeded  EventType = "payment.succeeded"
	EventTypeFailed     EventType = "payment.failed"
	EventTypeVoided     EventType = "payment.voided"
)

// PaymentEvent is a provider-neutral event parsed from a webhook payload.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	Type              EventType
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}
