// Package domain contains the pricing contract for booking selections.
package domain

import (
	"context"
	"errors"
)

// BookingType selects the commercial model for a booking.
type BookingType string

const (
	BookingTypeSingle    BookingType = "SINGLE"
	BookingTypeRecurring BookingType = "RECURRING"
	BookingTypePack      BookingType = "PACK"
)

var (
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrInvalidBookingType = errors.New("unknown booking type")
	ErrInvalidPackSize    = errors.New("pack size must be positive")
)

// QuoteRequest asks for the charge amount of one selection. Price is the
// class type base price in minor units.
type QuoteRequest struct {
	Price       int64
	BookingType BookingType
	PackSize    int
}

// Quote is the computed charge for a selection.
type Quote struct {
	Amount      int64       `json:"amount"`
	BookingType BookingType `json:"booking_type"`
	PackSize    int         `json:"pack_size,omitempty"`
	DiscountPct int         `json:"discount_pct"`
}

// Service computes charges deterministically with no I/O.
type Service interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}
