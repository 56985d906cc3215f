package server

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
)

type createPaymentIntentRequest struct {
	ClassSessionID string `json:"class_session_id" binding:"required"`
	BookingType    string `json:"booking_type" binding:"required"`
	PackSize       int    `json:"pack_size"`
	AutoRenew      bool   `json:"auto_renew"`
	TrackingCode   string `json:"tracking_code"`
}

type createPaymentIntentResponse struct {
	PaymentRequired   bool   `json:"payment_required"`
	PaymentID         string `json:"payment_id,omitempty"`
	ClientSecret      string `json:"client_secret,omitempty"`
	MerchantAccountID string `json:"merchant_account_id,omitempty"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency,omitempty"`
}

// CreatePaymentIntent quotes the selection and opens a hold for it. The
// selection rides along in the hold metadata so webhook settlement can
// confirm the booking without another client call.
func (s *Server) CreatePaymentIntent(c *gin.Context) {
	var req createPaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	sessionID, err := snowflake.ParseString(req.ClassSessionID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	session, err := s.availabilitySvc.GetSession(ctx, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	classType, err := s.catalogSvc.GetClassType(ctx, session.ClassTypeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	selection := bookingdomain.Selection{
		Type:      pricingdomain.BookingType(req.BookingType),
		PackSize:  req.PackSize,
		AutoRenew: req.AutoRenew,
	}
	quote, err := s.pricingSvc.Quote(ctx, pricingdomain.QuoteRequest{
		Price:       classType.PriceAmount,
		BookingType: selection.Type,
		PackSize:    selection.PackSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	hold, err := s.paymentSvc.CreateHold(ctx, paymentdomain.CreateHoldRequest{
		StudioID: session.StudioID,
		Amount:   quote.Amount,
		Currency: classType.Currency,
		Metadata: bookingdomain.SelectionMetadata(s.clientID(c), session.ID, selection, req.TrackingCode),
	})
	if err != nil {
		// A free-tier studio needs no hold; the client goes straight to
		// confirmation.
		if errors.Is(err, paymentdomain.ErrPaymentsDisabled) {
			c.JSON(http.StatusOK, createPaymentIntentResponse{
				PaymentRequired: false,
				Currency:        classType.Currency,
			})
			return
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
