package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// AdapterConfig carries provider-specific settings (API keys, webhook
// secrets) as an opaque map.
type AdapterConfig struct {
	Config map[string]any
}

// HoldRequest asks the processor to authorize funds without capture,
// scoped to one merchant sub-account.
type HoldRequest struct {
	PaymentID         snowflake.ID
	MerchantAccountID string
	Amount            int64
	Currency          string
	Metadata          map[string]string
}

// HoldResult is the processor's handle for an opened hold.
type HoldResult struct {
	ExternalReference string
	ClientSecret      string
}

// PaymentAdapter talks to one external processor.
type PaymentAdapter interface {
	CreateHold(ctx context.Context, req HoldRequest) (*HoldResult, error)
	VoidHold(ctx context.Context, externalReference string) error
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// AdapterFactory builds adapters for one provider name.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}
