package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
)

type subscriptionResponse struct {
	ID               string `json:"id"`
	StudioID         string `json:"studio_id"`
	ClassTypeID      string `json:"class_type_id"`
	Type             string `json:"type"`
	Interval         string `json:"interval,omitempty"`
	Status           string `json:"status"`
	CurrentPeriodEnd string `json:"current_period_end"`
	PackSize         *int   `json:"pack_size,omitempty"`
	PackRemaining    *int   `json:"pack_remaining,omitempty"`
	AutoRenew        bool   `json:"auto_renew"`
}

func toSubscriptionResponse(sub *subscriptiondomain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:               sub.ID.String(),
		StudioID:         sub.StudioID.String(),
		ClassTypeID:      sub.ClassTypeID.String(),
		Type:             string(sub.Type),
		Interval:         string(sub.Interval),
		Status:           string(sub.Status),
		CurrentPeriodEnd: sub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
		PackSize:         sub.PackSize,
		PackRemaining:    sub.PackRemaining,
		AutoRenew:        sub.AutoRenew,
	}
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	studioID, ok := queryID(c, "studio_id")
	if !ok || studioID == nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subs, err := s.subscriptionSvc.ListForClient(c.Request.Context(), *studioID, s.clientID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, toSubscriptionResponse(sub))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": resp})
}

func (s *Server) GetSubscription(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if sub.ClientID != s.clientID(c) {
		AbortWithError(c, subscriptiondomain.ErrSubscriptionNotFound)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

// RenewSubscription opens a renewal hold on demand instead of waiting for
// the scheduler sweep. The new period or refill lands when the payment
// settles through the webhook pipeline.
func (s *Server) RenewSubscription(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	sub, err := s.subscriptionSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if sub.ClientID != s.clientID(c) {
		AbortWithError(c, subscriptiondomain.ErrSubscriptionNotFound)
		return
	}
	if sub.Status == subscriptiondomain.SubscriptionStatusExpired {
		AbortWithError(c, subscriptiondomain.ErrSubscriptionInactive)
		return
	}

	classType, err := s.catalogSvc.GetClassType(ctx, sub.ClassTypeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	refill := 0
	quoteReq := pricingdomain.QuoteRequest{
		Price:       classType.PriceAmount,
		BookingType: sub.Type,
	}
	if sub.IsPack() && sub.PackSize != nil {
		refill = *sub.PackSize
		quoteReq.PackSize = refill
	}
	quote, err := s.pricingSvc.Quote(ctx, quoteReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	hold, err := s.paymentSvc.CreateHold(ctx, paymentdomain.CreateHoldRequest{
		StudioID: sub.StudioID,
		Amount:   quote.Amount,
		Currency: classType.Currency,
		Metadata: map[string]any{
			subscriptiondomain.MetaRenewalSubscriptionID: sub.ID.String(),
			subscriptiondomain.MetaRenewalPackRefill:     strconv.Itoa(refill),
			bookingdomain.MetaClientID:                   sub.ClientID,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.subscriptionSvc.BeginRenewal(ctx, sub.ID, hold.PaymentID); err != nil {
		if errors.Is(err, subscriptiondomain.ErrRenewalInFlight) {
			_ = s.paymentSvc.VoidHold(ctx, hold.PaymentID, "duplicate_renewal")
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, createPaymentIntentResponse{
		PaymentRequired:   true,
		PaymentID:         hold.PaymentID.String(),
		ClientSecret:      hold.ClientSecret,
		MerchantAccountID: hold.MerchantAccountID,
		Amount:            hold.Amount,
		Currency:          hold.Currency,
	})
}

// CancelSubscription requests cancellation; access continues until the end
// of the paid period.
func (s *Server) CancelSubscription(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.Cancel(c.Request.Context(), id, s.clientID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}
