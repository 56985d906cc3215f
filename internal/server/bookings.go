package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
)

type confirmBookingRequest struct {
	ClassSessionID string `json:"class_session_id" binding:"required"`
	BookingType    string `json:"booking_type" binding:"required"`
	PackSize       int    `json:"pack_size"`
	AutoRenew      bool   `json:"auto_renew"`
	PaymentID      string `json:"payment_id"`
	SubscriptionID string `json:"subscription_id"`
	TrackingCode   string `json:"tracking_code"`
	Amount         int64  `json:"amount"`
}

type bookingResponse struct {
	ID             string  `json:"id"`
	StudioID       string  `json:"studio_id"`
	ClientID       string  `json:"client_id"`
	ClassSessionID string  `json:"class_session_id"`
	Status         string  `json:"status"`
	BookingType    string  `json:"booking_type"`
	PackSize       *int    `json:"pack_size,omitempty"`
	PaymentID      *string `json:"payment_id"`
	SubscriptionID *string `json:"subscription_id,omitempty"`
	Amount         int64   `json:"amount"`
}

func toBookingResponse(b *bookingdomain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:             b.ID.String(),
		StudioID:       b.StudioID.String(),
		ClientID:       b.ClientID,
		ClassSessionID: b.ClassSessionID.String(),
		Status:         string(b.Status),
		BookingType:    string(b.BookingType),
		PackSize:       b.PackSize,
		Amount:         b.Amount,
	}
	if b.PaymentID != nil {
		pid := b.PaymentID.String()
		resp.PaymentID = &pid
	}
	if b.SubscriptionID != nil {
		sid := b.SubscriptionID.String()
		resp.SubscriptionID = &sid
	}
	return resp
}

// ConfirmBooking claims a seat for the client. Payment-backed requests are
// idempotent per payment id; free-tier studios confirm without a payment.
func (s *Server) ConfirmBooking(c *gin.Context) {
	var req confirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	sessionID, err := snowflake.ParseString(req.ClassSessionID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	confirm := bookingdomain.ConfirmRequest{
		ClientID:       s.clientID(c),
		ClassSessionID: sessionID,
		Selection: bookingdomain.Selection{
			Type:      pricingdomain.BookingType(req.BookingType),
			PackSize:  req.PackSize,
			AutoRenew: req.AutoRenew,
		},
		TrackingCode: req.TrackingCode,
		Amount:       req.Amount,
	}
	if req.PaymentID != "" {
		pid, err := snowflake.ParseString(req.PaymentID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		confirm.PaymentID = &pid
	}
	if req.SubscriptionID != "" {
		sid, err := snowflake.ParseString(req.SubscriptionID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		confirm.SubscriptionID = &sid
	}

	booking, err := s.bookingSvc.Confirm(c.Request.Context(), confirm)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(booking))
}

func (s *Server) GetBooking(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	booking, err := s.bookingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if booking.ClientID != s.clientID(c) {
		AbortWithError(c, bookingdomain.ErrBookingNotFound)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(booking))
}

func (s *Server) CancelBooking(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	booking, err := s.bookingSvc.Cancel(c.Request.Context(), id, s.clientID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(booking))
}
