package service

import (
	"context"
	"testing"

	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) pricingdomain.Service {
	t.Helper()
	return NewService(ServiceParam{Log: zap.NewNop()})
}

func TestQuoteSingle(t *testing.T) {
	svc := newTestService(t)

	quote, err := svc.Quote(context.Background(), pricingdomain.QuoteRequest{
		Price:       3000,
		BookingType: pricingdomain.BookingTypeSingle,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), quote.Amount)
	assert.Equal(t, 0, quote.DiscountPct)
}

func TestQuoteRecurring(t *testing.T) {
	svc := newTestService(t)

	quote, err := svc.Quote(context.Background(), pricingdomain.QuoteRequest{
		Price:       3000,
		BookingType: pricingdomain.BookingTypeRecurring,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2550), quote.Amount)
	assert.Equal(t, 15, quote.DiscountPct)
}

func TestQuotePackTiers(t *testing.T) {
	svc := newTestService(t)

	testCases := []struct {
		name        string
		packSize    int
		amount      int64
		discountPct int
	}{
		{name: "five", packSize: 5, amount: 13500, discountPct: 10},
		{name: "ten", packSize: 10, amount: 24000, discountPct: 20},
		{name: "twenty", packSize: 20, amount: 45000, discountPct: 25},
		{name: "above top tier", packSize: 30, amount: 67500, discountPct: 25},
		{name: "snaps down to nearest", packSize: 7, amount: 18900, discountPct: 10},
		{name: "snaps up to nearest", packSize: 9, amount: 21600, discountPct: 20},
		{name: "tie goes to larger tier", packSize: 15, amount: 33750, discountPct: 25},
		{name: "below lowest tier", packSize: 2, amount: 5400, discountPct: 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := svc.Quote(context.Background(), pricingdomain.QuoteRequest{
				Price:       3000,
				BookingType: pricingdomain.BookingTypePack,
				PackSize:    tc.packSize,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.amount, quote.Amount)
			assert.Equal(t, tc.discountPct, quote.DiscountPct)
		})
	}
}

func TestQuoteRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Quote(context.Background(), pricingdomain.QuoteRequest{
		Price:       0,
		BookingType: pricingdomain.BookingTypeSingle,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)

	_, err = svc.Quote(context.Background(), pricingdomain.QuoteRequest{
		Price:       -100,
		BookingType: pricingdomain.BookingTypeRecurring,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)

	_, err = svc.Quote(context.Background(), pricingdomain.QuoteRequest{
		Price:       3000,
		BookingType: pricingdomain.BookingTypePack,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPackSize)

	_, err = svc.Quote(context.Background(), pricingdomain.QuoteRequest{
		Price:       3000,
		BookingType: pricingdomain.BookingType("TRIAL"),
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidBookingType)
}
