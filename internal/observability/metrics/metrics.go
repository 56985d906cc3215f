package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	bookingsConfirmed metric.Int64Counter
	bookingsRejected  metric.Int64Counter
	paymentEvents     metric.Int64Counter
	holdsVoided       metric.Int64Counter
	trackingClicks    metric.Int64Counter
	trackingConvs     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "slotline"
	}
	meter := provider.Meter(name)

	bookingsConfirmed, err := meter.Int64Counter("slotline_bookings_confirmed_total")
	if err != nil {
		return nil, err
	}
	bookingsRejected, err := meter.Int64Counter("slotline_bookings_rejected_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("slotline_payment_events_total")
	if err != nil {
		return nil, err
	}
	holdsVoided, err := meter.Int64Counter("slotline_holds_voided_total")
	if err != nil {
		return nil, err
	}
	trackingClicks, err := meter.Int64Counter("slotline_tracking_clicks_total")
	if err != nil {
		return nil, err
	}
	trackingConvs, err := meter.Int64Counter("slotline_tracking_conversions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		bookingsConfirmed: bookingsConfirmed,
		bookingsRejected:  bookingsRejected,
		paymentEvents:     paymentEvents,
		holdsVoided:       holdsVoided,
		trackingClicks:    trackingClicks,
		trackingConvs:     trackingConvs,
	}, nil
}

// RecordBookingConfirmed increments confirmed booking counts.
func (m *Metrics) RecordBookingConfirmed(ctx context.Context, bookingType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("booking_type", strings.TrimSpace(bookingType)))
	m.bookingsConfirmed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBookingRejected increments rejected booking counts by reason.
func (m *Metrics) RecordBookingRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.bookingsRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordHoldVoided increments voided hold counts by reason.
func (m *Metrics) RecordHoldVoided(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.holdsVoided.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTrackingClick increments tracked click counts.
func (m *Metrics) RecordTrackingClick(ctx context.Context, deduped bool) {
	if m == nil {
		return
	}
	result := "counted"
	if deduped {
		result = "deduped"
	}
	attrs := FilterAttributes(attribute.String("result", result))
	m.trackingClicks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTrackingConversion increments tracked conversion counts.
func (m *Metrics) RecordTrackingConversion(ctx context.Context, bookingType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("booking_type", strings.TrimSpace(bookingType)))
	m.trackingConvs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"booking_type": {},
	"provider":     {},
	"event_type":   {},
	"reason":       {},
	"result":       {},
	"status_code":  {},
	"endpoint":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
