package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	"go.uber.org/zap"
)

// HandlePaymentWebhook ingests a processor event and, when the payment
// settles, drives the follow-up: booking confirmation for hold payments,
// credit refill for pack renewals. Replayed events are acknowledged without
// side effects.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.ProcessEvent(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) || errors.Is(err, paymentdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	if result.StatusChanged && isSettledEvent(result.EventType) {
		if err := s.settlePayment(c, result.Payment); err != nil {
			// A full session already voided the hold; acknowledge so the
			// processor stops retrying. Everything else returns 5xx for a
			// redelivery.
			if !errors.Is(err, bookingdomain.ErrSlotUnavailable) {
				AbortWithError(c, err)
				return
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isSettledEvent(eventType paymentdomain.EventType) bool {
	return eventType == paymentdomain.EventTypeAuthorized || eventType == paymentdomain.EventTypeSucceeded
}

func (s *Server) settlePayment(c *gin.Context, payment *paymentdomain.Payment) error {
	ctx := c.Request.Context()

	if subID, refill, ok := renewalTarget(payment.Metadata); ok {
		_, err := s.subscriptionSvc.ApplyRenewal(ctx, subscriptiondomain.RenewalRequest{
			SubscriptionID: subID,
			PaymentID:      payment.ID,
			PackRefill:     refill,
		})
		if errors.Is(err, subscriptiondomain.ErrRenewalAlreadyApplied) {
			return nil
		}
		return err
	}

	booking, err := s.bookingSvc.ConfirmFromPayment(ctx, payment)
	if err != nil {
		if errors.Is(err, bookingdomain.ErrInvalidSelection) {
			// A hold opened outside the booking flow has nothing to
			// confirm; the settlement itself already stuck.
			s.log.Warn("settled payment without booking selection",
				zap.String("payment_id", payment.ID.String()),
			)
			return nil
		}
		return err
	}

	s.log.Info("booking confirmed from webhook",
		zap.String("payment_id", payment.ID.String()),
		zap.String("booking_id", booking.ID.String()),
	)
	return nil
}

func renewalTarget(meta map[string]any) (snowflake.ID, int, bool) {
	raw, _ := meta[subscriptiondomain.MetaRenewalSubscriptionID].(string)
	if raw == "" {
		return 0, 0, false
	}
	subID, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, 0, false
	}

	refill := 0
	if rawRefill, ok := meta[subscriptiondomain.MetaRenewalPackRefill].(string); ok {
		refill, _ = strconv.Atoi(rawRefill)
	}
	return subID, refill, true
}
