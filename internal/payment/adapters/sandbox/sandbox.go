// Package sandbox is an in-process processor stand-in for development and
// self-hosted deployments without a real payment provider.
package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "sandbox"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := "sandbox"
	if configured, ok := cfg.Config["webhook_secret"].(string); ok && strings.TrimSpace(configured) != "" {
		secret = strings.TrimSpace(configured)
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) CreateHold(_ context.Context, req paymentdomain.HoldRequest) (*paymentdomain.HoldResult, error) {
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	return &paymentdomain.HoldResult{
		ExternalReference: "sbx_" + uuid.NewString(),
		ClientSecret:      "sbx_secret_" + uuid.NewString(),
	}, nil
}

func (a *Adapter) VoidHold(_ context.Context, externalReference string) error {
	if strings.TrimSpace(externalReference) == "" {
		return paymentdomain.ErrPaymentNotFound
	}
	return nil
}

func (a *Adapter) Verify(_ context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("Sandbox-Signature"))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type sandboxEvent struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	ExternalReference string `json:"external_reference"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	OccurredAt        int64  `json:"occurred_at"`
}

func (a *Adapter) Parse(_ context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event sandboxEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.ExternalReference) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType paymentdomain.EventType
	switch strings.TrimSpace(event.Type) {
	case "hold.authorized":
		eventType = paymentdomain.EventTypeAuthorized
	case "hold.succeeded":
		eventType = paymentdomain.EventTypeSucceeded
	case "hold.failed":
		eventType = paymentdomain.EventTypeFailed
	case "hold.voided":
		eventType = paymentdomain.EventTypeVoided
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := time.Now().UTC()
	if event.OccurredAt > 0 {
		occurredAt = time.Unix(event.OccurredAt, 0).UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:          "sandbox",
		ProviderEventID:   event.ID,
		ProviderPaymentID: event.ExternalReference,
		Type:              eventType,
		Amount:            event.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(event.Currency)),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}
