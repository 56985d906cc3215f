// Package domain contains attribution models for marketing tracking codes.
package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// TrackingAttribution accumulates click, conversion and revenue counters
// for one code. Counters are append-only.
type TrackingAttribution struct {
	Code        string    `gorm:"primaryKey;type:text"`
	Clicks      int64     `gorm:"not null;default:0"`
	Conversions int64     `gorm:"not null;default:0"`
	Revenue     int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TrackingAttribution) TableName() string { return "tracking_attributions" }

var ErrCodeNotFound = errors.New("tracking code not found")

// codePattern bounds the accepted shape of inbound codes. Codes arrive
// from untrusted query parameters, so anything else is dropped silently.
var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)

// NormalizeCode trims and validates a raw tracking code. The second return
// reports whether the code is usable.
func NormalizeCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	if !codePattern.MatchString(code) {
		return "", false
	}
	return code, true
}

// Service records and reports attribution. Invalid codes are ignored, not
// rejected, on the write paths.
type Service interface {
	RecordClick(ctx context.Context, code, sessionKey string) error
	RecordConversion(ctx context.Context, code string, revenue int64) error
	Get(ctx context.Context, code string) (*TrackingAttribution, error)
}
