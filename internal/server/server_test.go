package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	availabilityrepository "github.com/slotline/slotline/internal/availability/repository"
	availabilityservice "github.com/slotline/slotline/internal/availability/service"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	bookingrepository "github.com/slotline/slotline/internal/booking/repository"
	bookingservice "github.com/slotline/slotline/internal/booking/service"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	catalogservice "github.com/slotline/slotline/internal/catalog/service"
	"github.com/slotline/slotline/internal/clock"
	"github.com/slotline/slotline/internal/config"
	"github.com/slotline/slotline/internal/payment/adapters"
	"github.com/slotline/slotline/internal/payment/adapters/sandbox"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	paymentrepository "github.com/slotline/slotline/internal/payment/repository"
	paymentservice "github.com/slotline/slotline/internal/payment/service"
	pricingservice "github.com/slotline/slotline/internal/pricing/service"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	subscriptionrepository "github.com/slotline/slotline/internal/subscription/repository"
	subscriptionservice "github.com/slotline/slotline/internal/subscription/service"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	trackingrepository "github.com/slotline/slotline/internal/tracking/repository"
	trackingservice "github.com/slotline/slotline/internal/tracking/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testWebhookSecret = "sandbox"

type serverTestEnv struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	engine   *gin.Engine
	payments paymentdomain.Service
	bookings bookingdomain.Service
	tracking trackingdomain.Service
}

func newServerTestEnv(t *testing.T, name string) *serverTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), name+".db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Studio{},
		&catalogdomain.ClassType{},
		&catalogdomain.Location{},
		&catalogdomain.Instructor{},
		&availabilitydomain.ClassSession{},
		&bookingdomain.Booking{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
		&trackingdomain.TrackingAttribution{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	policy, err := config.NewPolicyHolder()
	require.NoError(t, err)

	catalog := catalogservice.NewService(catalogservice.ServiceParam{DB: db, Log: zap.NewNop()})
	pricing := pricingservice.NewService(pricingservice.ServiceParam{Log: zap.NewNop()})
	sessions := availabilityrepository.Provide()
	availability := availabilityservice.NewService(availabilityservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  sessions,
	})
	tracking := trackingservice.NewService(trackingservice.ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		Repo:   trackingrepository.Provide(),
		Policy: policy,
	})
	payments, err := paymentservice.NewService(paymentservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Config: config.Config{
			PaymentProvider:      "sandbox",
			PaymentWebhookSecret: testWebhookSecret,
		},
		Repo:     paymentrepository.Provide(),
		Catalog:  catalog,
		Registry: adapters.NewRegistry(sandbox.NewFactory()),
	})
	require.NoError(t, err)
	subRepo := subscriptionrepository.Provide()
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  subRepo,
	})
	bookings := bookingservice.NewService(bookingservice.ServiceParam{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Repo:         bookingrepository.Provide(),
		Sessions:     sessions,
		Catalog:      catalog,
		Payments:     payments,
		Tracking:     tracking,
		Subscription: subs,
		SubRepo:      subRepo,
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{HTTPAddr: ":0"},
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		AvailabilitySvc: availability,
		CatalogSvc:      catalog,
		PricingSvc:      pricing,
		TrackingSvc:     tracking,
		PaymentSvc:      payments,
		BookingSvc:      bookings,
		SubscriptionSvc: subs,
	})

	return &serverTestEnv{
		db:       db,
		node:     node,
		clock:    fake,
		engine:   engine,
		payments: payments,
		bookings: bookings,
		tracking: tracking,
	}
}

func (e *serverTestEnv) seedStudio(t *testing.T, paymentsEnabled bool) *catalogdomain.Studio {
	t.Helper()
	merchant := "acct_server"
	studio := &catalogdomain.Studio{
		ID:              e.node.Generate(),
		Name:            "Lakeview Spin",
		Slug:            "lakeview-" + e.node.Generate().String(),
		Currency:        "USD",
		PaymentsEnabled: paymentsEnabled,
	}
	if paymentsEnabled {
		studio.MerchantAccountID = &merchant
	}
	require.NoError(t, e.db.Create(studio).Error)
	return studio
}

func (e *serverTestEnv) seedSession(t *testing.T, studio *catalogdomain.Studio, price int64, capacity int) *availabilitydomain.ClassSession {
	t.Helper()
	classType := &catalogdomain.ClassType{
		ID:          e.node.Generate(),
		StudioID:    studio.ID,
		Name:        "Spin 45",
		DurationMin: 45,
		PriceAmount: price,
		Currency:    "USD",
		Active:      true,
	}
	require.NoError(t, e.db.Create(classType).Error)

	location := &catalogdomain.Location{
		ID:       e.node.Generate(),
		StudioID: studio.ID,
		Name:     "Studio A",
		Timezone: "UTC",
	}
	require.NoError(t, e.db.Create(location).Error)

	instructor := &catalogdomain.Instructor{
		ID:          e.node.Generate(),
		StudioID:    studio.ID,
		DisplayName: "Priya Raman",
		Active:      true,
	}
	require.NoError(t, e.db.Create(instructor).Error)

	start := e.clock.Now().Add(24 * time.Hour)
	session := &availabilitydomain.ClassSession{
		ID:           e.node.Generate(),
		StudioID:     studio.ID,
		LocationID:   location.ID,
		ClassTypeID:  classType.ID,
		InstructorID: instructor.ID,
		StartsAt:     start,
		EndsAt:       start.Add(45 * time.Minute),
		Capacity:     capacity,
		Status:       availabilitydomain.SessionStatusScheduled,
	}
	require.NoError(t, e.db.Create(session).Error)
	return session
}

func (e *serverTestEnv) doJSON(method, path, clientID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set(HeaderClient, clientID)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *serverTestEnv) postWebhook(t *testing.T, eventID, eventType, externalRef string, amount int64) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":                 eventID,
		"type":               eventType,
		"external_reference": externalRef,
		"amount":             amount,
		"currency":           "USD",
	})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = mac.Write(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/sandbox", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Sandbox-Signature", hex.EncodeToString(mac.Sum(nil)))
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestPaymentIntentToWebhookConfirmFlow(t *testing.T) {
	env := newServerTestEnv(t, "server_flow")
	studio := env.seedStudio(t, true)
	session := env.seedSession(t, studio, 3000, 2)

	w := env.doJSON(http.MethodPost, "/api/payment-intents", "client-a", map[string]any{
		"class_session_id": session.ID.String(),
		"booking_type":     "SINGLE",
		"tracking_code":    "spring-sale",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var intent createPaymentIntentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	assert.True(t, intent.PaymentRequired)
	assert.EqualValues(t, 3000, intent.Amount)
	require.NotEmpty(t, intent.PaymentID)
	require.NotEmpty(t, intent.ClientSecret)

	paymentID, err := snowflake.ParseString(intent.PaymentID)
	require.NoError(t, err)
	payment, err := env.payments.GetPayment(context.Background(), paymentID)
	require.NoError(t, err)
	require.NotNil(t, payment.ExternalReference)

	w = env.postWebhook(t, "evt_1", "hold.authorized", *payment.ExternalReference, 3000)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	booking, err := env.bookings.GetByPaymentID(context.Background(), paymentID)
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, "client-a", booking.ClientID)

	// Redelivered events are acknowledged and change nothing.
	w = env.postWebhook(t, "evt_1", "hold.authorized", *payment.ExternalReference, 3000)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, env.db.Model(&bookingdomain.Booking{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newServerTestEnv(t, "server_sig")

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/sandbox", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Sandbox-Signature", "deadbeef")
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmFreeStudioOverHTTP(t *testing.T) {
	env := newServerTestEnv(t, "server_free")
	studio := env.seedStudio(t, false)
	session := env.seedSession(t, studio, 3000, 1)

	w := env.doJSON(http.MethodPost, "/api/bookings/confirm", "client-a", map[string]any{
		"class_session_id": session.ID.String(),
		"booking_type":     "SINGLE",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.PaymentID)
	assert.Equal(t, string(bookingdomain.BookingStatusConfirmed), resp.Status)

	// The single spot is gone; the next confirm conflicts.
	w = env.doJSON(http.MethodPost, "/api/bookings/confirm", "client-b", map[string]any{
		"class_session_id": session.ID.String(),
		"booking_type":     "SINGLE",
	})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestListSlotsInvalidFilterReturnsEmpty(t *testing.T) {
	env := newServerTestEnv(t, "server_slots")
	studio := env.seedStudio(t, true)
	env.seedSession(t, studio, 3000, 5)

	w := env.doJSON(http.MethodGet, fmt.Sprintf("/api/slots?studio_id=%s&location_id=not-a-number", studio.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Slots []json.RawMessage `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Slots)

	w = env.doJSON(http.MethodGet, fmt.Sprintf("/api/slots?studio_id=%s", studio.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Slots, 1)
}

func TestTrackClickRedirectsAndCounts(t *testing.T) {
	env := newServerTestEnv(t, "server_click")

	req := httptest.NewRequest(http.MethodGet, "/t/spring-sale?to=/classes", nil)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/classes", w.Header().Get("Location"))

	stats, err := env.tracking.Get(context.Background(), "spring-sale")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Clicks)

	// Malformed codes redirect without recording anything.
	req = httptest.NewRequest(http.MethodGet, "/t/x;y?to=//evil.example", nil)
	w = httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}
