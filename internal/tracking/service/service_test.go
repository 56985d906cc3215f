package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/slotline/slotline/internal/config"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"github.com/slotline/slotline/internal/tracking/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&trackingdomain.TrackingAttribution{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) trackingdomain.Service {
	t.Helper()
	policy, err := config.NewPolicyHolder()
	require.NoError(t, err)

	return NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		Repo:   repository.Provide(),
		Policy: policy,
	})
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		raw   string
		code  string
		valid bool
	}{
		{raw: "spring-sale_24", code: "spring-sale_24", valid: true},
		{raw: "  promo2024  ", code: "promo2024", valid: true},
		{raw: "abc12", valid: false},
		{raw: "has space", valid: false},
		{raw: "semi;colon", valid: false},
		{raw: "", valid: false},
		{raw: "x1234567890123456789012345678901234567890123456789012345678901234", valid: false},
	}

	for _, tc := range tests {
		code, ok := trackingdomain.NormalizeCode(tc.raw)
		assert.Equal(t, tc.valid, ok, "raw %q", tc.raw)
		if tc.valid {
			assert.Equal(t, tc.code, code)
		}
	}
}

func TestRecordClickDedupsPerSession(t *testing.T) {
	db := newTestDB(t, "tracking_click")
	svc := newTestService(t, db)
	ctx := context.Background()

	require.NoError(t, svc.RecordClick(ctx, "promo-2024", "sess-a"))
	require.NoError(t, svc.RecordClick(ctx, "promo-2024", "sess-a"))
	require.NoError(t, svc.RecordClick(ctx, "promo-2024", "sess-b"))

	attribution, err := svc.Get(ctx, "promo-2024")
	require.NoError(t, err)
	assert.Equal(t, int64(2), attribution.Clicks)
	assert.Equal(t, int64(0), attribution.Conversions)
}

func TestRecordClickIgnoresMalformedCodes(t *testing.T) {
	db := newTestDB(t, "tracking_malformed")
	svc := newTestService(t, db)
	ctx := context.Background()

	require.NoError(t, svc.RecordClick(ctx, "ab", "sess-a"))
	require.NoError(t, svc.RecordClick(ctx, "bad code!", "sess-a"))

	_, err := svc.Get(ctx, "ab")
	assert.ErrorIs(t, err, trackingdomain.ErrCodeNotFound)
}

func TestRecordConversionAccumulates(t *testing.T) {
	db := newTestDB(t, "tracking_conversion")
	svc := newTestService(t, db)
	ctx := context.Background()

	require.NoError(t, svc.RecordConversion(ctx, "spring-sale", 2550))
	require.NoError(t, svc.RecordConversion(ctx, "spring-sale", 3000))

	attribution, err := svc.Get(ctx, "spring-sale")
	require.NoError(t, err)
	assert.Equal(t, int64(2), attribution.Conversions)
	assert.Equal(t, int64(5550), attribution.Revenue)
	assert.Equal(t, int64(0), attribution.Clicks)
}

func TestRecordConversionIgnoresMalformedCodes(t *testing.T) {
	db := newTestDB(t, "tracking_conversion_malformed")
	svc := newTestService(t, db)

	require.NoError(t, svc.RecordConversion(context.Background(), "no!", 1000))
}
