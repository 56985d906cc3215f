package tracing

import (
	"errors"
	"regexp"

	"go.opentelemetry.io/otel/attribute"
)

var allowedSpanAttrKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"booking_type":            {},
	"provider":                {},
	"event_type":              {},
}

// SafeAttributes strips span attributes that could carry request payload data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanAttrKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

var sensitivePattern = regexp.MustCompile(`(?i)(secret|token|password|authorization|card)`)

// SafeError returns the error with sensitive messages redacted.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	if sensitivePattern.MatchString(err.Error()) {
		return errors.New("redacted error")
	}
	return err
}
