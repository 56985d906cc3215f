package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}

	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}

	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case errors.Is(err, bookingdomain.ErrSlotUnavailable),
		errors.Is(err, availabilitydomain.ErrSessionFull):
		return http.StatusConflict, errorPayload{
			Type:    "slot_unavailable",
			Message: "the class session has no spots left",
		}

	case errors.Is(err, subscriptiondomain.ErrRenewalInFlight):
		return http.StatusConflict, errorPayload{
			Type:    "renewal_in_flight",
			Message: "a renewal payment is already pending",
		}

	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}

	case errors.Is(err, paymentdomain.ErrProcessorUnavailable):
		// Retryable: nothing was persisted for the attempted hold.
		return http.StatusBadGateway, errorPayload{
			Type:    "processor_unavailable",
			Message: "payment processor unavailable, retry later",
		}

	case errors.Is(err, paymentdomain.ErrMerchantNotConfigured):
		// Fatal tenant misconfiguration, not retryable.
		return http.StatusInternalServerError, errorPayload{
			Type:    "configuration_error",
			Message: "studio payout account is not configured",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, availabilitydomain.ErrInvalidSlotQuery),
		errors.Is(err, pricingdomain.ErrInvalidPrice),
		errors.Is(err, pricingdomain.ErrInvalidBookingType),
		errors.Is(err, pricingdomain.ErrInvalidPackSize),
		errors.Is(err, bookingdomain.ErrInvalidSelection),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, subscriptiondomain.ErrInvalidInterval):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrStudioNotFound),
		errors.Is(err, catalogdomain.ErrClassTypeNotFound),
		errors.Is(err, availabilitydomain.ErrSessionNotFound),
		errors.Is(err, bookingdomain.ErrBookingNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, trackingdomain.ErrCodeNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, bookingdomain.ErrPaymentRequired),
		errors.Is(err, bookingdomain.ErrPaymentNotUsable),
		errors.Is(err, bookingdomain.ErrStudioMismatch),
		errors.Is(err, bookingdomain.ErrNotCancellable),
		errors.Is(err, availabilitydomain.ErrSessionNotOpen),
		errors.Is(err, paymentdomain.ErrPaymentsDisabled),
		errors.Is(err, paymentdomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrSubscriptionInactive),
		errors.Is(err, subscriptiondomain.ErrNoCreditsRemaining),
		errors.Is(err, subscriptiondomain.ErrAlreadyCancelled):
		return true
	default:
		return false
	}
}

// classifyErrorForLog buckets request errors for the access log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status == http.StatusConflict:
		return "conflict", payload.Type
	default:
		return "client_error", payload.Type
	}
}
