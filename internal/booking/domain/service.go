package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
)

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrSlotUnavailable  = errors.New("slot unavailable")
	ErrPaymentRequired  = errors.New("payment required")
	ErrPaymentNotUsable = errors.New("payment not usable for booking")
	ErrStudioMismatch   = errors.New("payment studio does not match session studio")
	ErrNotCancellable   = errors.New("booking not cancellable")
	ErrInvalidSelection = errors.New("invalid booking selection")
)

// ConfirmRequest confirms one seat. PaymentID is nil only on the free-tier
// path or when consuming a pack credit via SubscriptionID.
type ConfirmRequest struct {
	ClientID       string
	ClassSessionID snowflake.ID
	Selection      Selection
	PaymentID      *snowflake.ID
	SubscriptionID *snowflake.ID
	TrackingCode   string
	Amount         int64
}

type Service interface {
	Confirm(ctx context.Context, req ConfirmRequest) (*Booking, error)

	// ConfirmFromPayment rebuilds a ConfirmRequest from the selection
	// persisted in the payment metadata at hold time.
	ConfirmFromPayment(ctx context.Context, payment *paymentdomain.Payment) (*Booking, error)

	Cancel(ctx context.Context, bookingID snowflake.ID, clientID string) (*Booking, error)
	Get(ctx context.Context, bookingID snowflake.ID) (*Booking, error)
	GetByPaymentID(ctx context.Context, paymentID snowflake.ID) (*Booking, error)
	CompletePastBookings(ctx context.Context, limit int) (int64, error)
}

// Metadata keys written into the payment hold at creation time. The webhook
// pipeline reads them back to drive confirmation without a second client call.
const (
	MetaClientID       = "client_id"
	MetaClassSessionID = "class_session_id"
	MetaBookingType    = "booking_type"
	MetaPackSize       = "pack_size"
	MetaAutoRenew      = "auto_renew"
	MetaTrackingCode   = "tracking_code"
)

// SelectionMetadata flattens a confirm request for payment hold metadata.
func SelectionMetadata(clientID string, sessionID snowflake.ID, sel Selection, trackingCode string) map[string]any {
	meta := map[string]any{
		MetaClientID:       clientID,
		MetaClassSessionID: sessionID.String(),
		MetaBookingType:    string(sel.Type),
	}
	if sel.PackSize > 0 {
		meta[MetaPackSize] = strconv.Itoa(sel.PackSize)
	}
	if sel.AutoRenew {
		meta[MetaAutoRenew] = "true"
	}
	if trackingCode != "" {
		meta[MetaTrackingCode] = trackingCode
	}
	return meta
}

// SelectionFromMetadata is the inverse of SelectionMetadata.
func SelectionFromMetadata(meta map[string]any) (clientID string, sessionID snowflake.ID, sel Selection, trackingCode string, err error) {
	clientID, _ = meta[MetaClientID].(string)
	if clientID == "" {
		return "", 0, Selection{}, "", fmt.Errorf("%w: missing %s", ErrInvalidSelection, MetaClientID)
	}

	rawSession, _ := meta[MetaClassSessionID].(string)
	sid, perr := snowflake.ParseString(rawSession)
	if perr != nil {
		return "", 0, Selection{}, "", fmt.Errorf("%w: bad %s", ErrInvalidSelection, MetaClassSessionID)
	}

	rawType, _ := meta[MetaBookingType].(string)
	sel.Type = pricingdomain.BookingType(rawType)
	switch sel.Type {
	case pricingdomain.BookingTypeSingle, pricingdomain.BookingTypeRecurring, pricingdomain.BookingTypePack:
	default:
		return "", 0, Selection{}, "", fmt.Errorf("%w: bad %s", ErrInvalidSelection, MetaBookingType)
	}

	if raw, ok := meta[MetaPackSize].(string); ok {
		sel.PackSize, _ = strconv.Atoi(raw)
	}
	if raw, ok := meta[MetaAutoRenew].(string); ok {
		sel.AutoRenew = raw == "true"
	}
	trackingCode, _ = meta[MetaTrackingCode].(string)
	return clientID, sid, sel, trackingCode, nil
}
