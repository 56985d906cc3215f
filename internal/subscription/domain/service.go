package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
)

var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrSubscriptionInactive  = errors.New("subscription inactive")
	ErrNoCreditsRemaining    = errors.New("no pack credits remaining")
	ErrAlreadyCancelled      = errors.New("cancellation already requested")
	ErrInvalidInterval       = errors.New("invalid subscription interval")
	ErrRenewalAlreadyApplied = errors.New("renewal already applied")
	ErrRenewalInFlight       = errors.New("renewal payment already in flight")
)

// Metadata keys stamped on renewal holds so the webhook pipeline routes a
// settled payment back to the subscription instead of a booking.
const (
	MetaRenewalSubscriptionID = "renewal_subscription_id"
	MetaRenewalPackRefill     = "renewal_pack_refill"
)

// EnsureRequest enrolls a client on first confirmed booking of a recurring
// membership or a class pack.
type EnsureRequest struct {
	StudioID    snowflake.ID
	ClientID    string
	ClassTypeID snowflake.ID
	Type        pricingdomain.BookingType
	Interval    Interval
	PackSize    int
	AutoRenew   bool
	PaymentID   *snowflake.ID
}

// RenewalRequest extends a subscription after a successful renewal payment.
type RenewalRequest struct {
	SubscriptionID snowflake.ID
	PaymentID      snowflake.ID
	PackRefill     int
}

type Service interface {
	// EnsureForBooking returns the client's active subscription for the
	// class type, creating one when none exists.
	EnsureForBooking(ctx context.Context, req EnsureRequest) (*Subscription, error)

	Get(ctx context.Context, id snowflake.ID) (*Subscription, error)
	ListForClient(ctx context.Context, studioID snowflake.ID, clientID string) ([]*Subscription, error)

	// Cancel requests cancellation. Access continues until the current
	// period ends; the row stays CANCEL_REQUESTED until the sweeper runs.
	Cancel(ctx context.Context, id snowflake.ID, clientID string) (*Subscription, error)

	// HasAccess checks the access window against the service clock.
	HasAccess(ctx context.Context, id snowflake.ID) (bool, error)

	// ApplyRenewal extends the period and refills pack credits, keyed by
	// payment so a replayed renewal is a no-op.
	ApplyRenewal(ctx context.Context, req RenewalRequest) (*Subscription, error)

	// ExpireDue moves subscriptions past their period end to EXPIRED.
	ExpireDue(ctx context.Context, limit int) (int64, error)

	// FindRenewablePacks returns active auto-renew packs with no credits
	// left, for the replenishment sweep.
	FindRenewablePacks(ctx context.Context, limit int) ([]*Subscription, error)

	// FindRenewableRecurring returns active auto-renew recurring
	// subscriptions past their period end with no renewal in flight.
	FindRenewableRecurring(ctx context.Context, limit int) ([]*Subscription, error)

	// BeginRenewal records the renewal hold as in flight. It fails with
	// ErrRenewalInFlight when another renewal payment is already pending;
	// the caller voids the surplus hold.
	BeginRenewal(ctx context.Context, id snowflake.ID, paymentID snowflake.ID) error
}
