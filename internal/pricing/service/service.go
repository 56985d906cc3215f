package service

import (
	"context"

	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const recurringDiscountPct = 15

// packTiers maps pack size to discount percent. Sizes between tiers snap
// to the nearest defined tier, ties to the larger one. Sizes at or above
// the top tier always use the top tier.
var packTiers = []struct {
	size        int
	discountPct int
}{
	{size: 5, discountPct: 10},
	{size: 10, discountPct: 20},
	{size: 20, discountPct: 25},
}

type Service struct {
	log *zap.Logger
}

type ServiceParam struct {
	fx.In

	Log *zap.Logger
}

func NewService(p ServiceParam) pricingdomain.Service {
	return &Service{
		log: p.Log.Named("pricing.service"),
	}
}

// Quote implements domain.Service.
func (s *Service) Quote(_ context.Context, req pricingdomain.QuoteRequest) (*pricingdomain.Quote, error) {
	if req.Price <= 0 {
		return nil, pricingdomain.ErrInvalidPrice
	}

	switch req.BookingType {
	case pricingdomain.BookingTypeSingle:
		return &pricingdomain.Quote{
			Amount:      req.Price,
			BookingType: req.BookingType,
		}, nil
	case pricingdomain.BookingTypeRecurring:
		return &pricingdomain.Quote{
			Amount:      applyDiscount(req.Price, recurringDiscountPct),
			BookingType: req.BookingType,
			DiscountPct: recurringDiscountPct,
		}, nil
	case pricingdomain.BookingTypePack:
		if req.PackSize <= 0 {
			return nil, pricingdomain.ErrInvalidPackSize
		}
		discountPct := packDiscountPct(req.PackSize)
		return &pricingdomain.Quote{
			Amount:      applyDiscount(req.Price*int64(req.PackSize), discountPct),
			BookingType: req.BookingType,
			PackSize:    req.PackSize,
			DiscountPct: discountPct,
		}, nil
	default:
		return nil, pricingdomain.ErrInvalidBookingType
	}
}

func packDiscountPct(size int) int {
	top := packTiers[len(packTiers)-1]
	if size >= top.size {
		return top.discountPct
	}

	best := packTiers[0]
	bestDistance := abs(size - best.size)
	for _, tier := range packTiers[1:] {
		distance := abs(size - tier.size)
		if distance <= bestDistance {
			best = tier
			bestDistance = distance
		}
	}
	return best.discountPct
}

func applyDiscount(amount int64, discountPct int) int64 {
	return amount * int64(100-discountPct) / 100
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
