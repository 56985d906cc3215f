package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
)

const apiBaseURL = "https://api.stripe.com/v1"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	apiKey, ok := readString(cfg.Config, "api_key")
	if !ok || strings.TrimSpace(apiKey) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok || strings.TrimSpace(secret) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		apiKey:        strings.TrimSpace(apiKey),
		webhookSecret: strings.TrimSpace(secret),
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type Adapter struct {
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
}

// CreateHold opens a manual-capture payment intent on the studio's
// connected account so funds settle per tenant.
func (a *Adapter) CreateHold(ctx context.Context, req paymentdomain.HoldRequest) (*paymentdomain.HoldResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("capture_method", "manual")
	form.Set("metadata[payment_id]", req.PaymentID.String())
	for key, value := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var intent stripePaymentIntent
	if err := a.do(ctx, http.MethodPost, "/payment_intents", req.MerchantAccountID, form, &intent); err != nil {
		return nil, err
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return nil, paymentdomain.ErrProcessorUnavailable
	}

	return &paymentdomain.HoldResult{
		ExternalReference: intent.ID,
		ClientSecret:      intent.ClientSecret,
	}, nil
}

// VoidHold cancels an uncaptured payment intent.
func (a *Adapter) VoidHold(ctx context.Context, externalReference string) error {
	if strings.TrimSpace(externalReference) == "" {
		return paymentdomain.ErrPaymentNotFound
	}
	path := fmt.Sprintf("/payment_intents/%s/cancel", url.PathEscape(externalReference))
	return a.do(ctx, http.MethodPost, path, "", url.Values{}, &stripePaymentIntent{})
}

func (a *Adapter) do(ctx context.Context, method, path, stripeAccount string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, apiBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if stripeAccount != "" {
		req.Header.Set("Stripe-Account", stripeAccount)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrProcessorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrProcessorUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return paymentdomain.ErrProcessorUnavailable
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d", paymentdomain.ErrProcessorUnavailable, resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType paymentdomain.EventType
	switch strings.TrimSpace(event.Type) {
	case "payment_intent.amount_capturable_updated":
		eventType = paymentdomain.EventTypeAuthorized
	case "payment_intent.succeeded":
		eventType = paymentdomain.EventTypeSucceeded
	case "payment_intent.payment_failed":
		eventType = paymentdomain.EventTypeFailed
	case "payment_intent.canceled":
		eventType = paymentdomain.EventTypeVoided
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	return &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		ProviderPaymentID: intent.ID,
		Type:              eventType,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:        timestamp(intent.Created, event.Created),
		RawPayload:        payload,
	}, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID             string `json:"id"`
	ClientSecret   string `json:"client_secret"`
	Amount         int64  `json:"amount"`
	AmountReceived int64  `json:"amount_received"`
	Currency       string `json:"currency"`
	Created        int64  `json:"created"`
}

func parseSignatureHeader(header string) (string, []string, error) {
	var timestamp string
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			timestamp = pair[1]
		case "v1":
			signatures = append(signatures, pair[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("malformed signature header")
	}
	return timestamp, signatures, nil
}

func timestamp(primary, fallback int64) time.Time {
	if primary > 0 {
		return time.Unix(primary, 0).UTC()
	}
	if fallback > 0 {
		return time.Unix(fallback, 0).UTC()
	}
	return time.Now().UTC()
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
