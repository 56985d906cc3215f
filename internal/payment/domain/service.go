package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrMerchantNotConfigured = errors.New("studio has no merchant sub-account configured")
	ErrPaymentsDisabled      = errors.New("studio has payments disabled")
	ErrProcessorUnavailable  = errors.New("payment processor unavailable")
	ErrInvalidAmount         = errors.New("payment amount must be positive")
	ErrInvalidTransition     = errors.New("invalid payment status transition")

	ErrProviderNotFound      = errors.New("payment provider not registered")
	ErrInvalidConfig         = errors.New("invalid payment adapter config")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrInvalidPayload        = errors.New("invalid webhook payload")
	ErrInvalidEvent          = errors.New("invalid webhook event")
	ErrEventIgnored          = errors.New("webhook event ignored")
	ErrEventAlreadyProcessed = errors.New("webhook event already processed")
)

// CreateHoldRequest opens a hold for a computed amount against the
// studio's merchant sub-account. Metadata is carried onto the payment row
// so webhook-driven confirmation can recover the booking selection.
type CreateHoldRequest struct {
	StudioID snowflake.ID
	Amount   int64
	Currency string
	Metadata map[string]any
}

// CreateHoldResponse is the client-facing authorization handle.
type CreateHoldResponse struct {
	PaymentID         snowflake.ID `json:"payment_id"`
	ClientSecret      string       `json:"client_secret"`
	MerchantAccountID string       `json:"merchant_account_id"`
	Amount            int64        `json:"amount"`
	Currency          string       `json:"currency"`
}

// ProcessEventResult reports the outcome of one webhook delivery.
type ProcessEventResult struct {
	Payment       *Payment
	EventType     EventType
	StatusChanged bool
}

// Service orchestrates payment holds and processor events.
type Service interface {
	CreateHold(ctx context.Context, req CreateHoldRequest) (*CreateHoldResponse, error)
	VoidHold(ctx context.Context, paymentID snowflake.ID, reason string) error
	GetPayment(ctx context.Context, id snowflake.ID) (*Payment, error)
	ProcessEvent(ctx context.Context, provider string, payload []byte, headers http.Header) (*ProcessEventResult, error)
	VoidStaleHolds(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
