package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slotline/slotline/internal/availability"
	availabilitydomain "github.com/slotline/slotline/internal/availability/domain"
	"github.com/slotline/slotline/internal/booking"
	bookingdomain "github.com/slotline/slotline/internal/booking/domain"
	"github.com/slotline/slotline/internal/catalog"
	catalogdomain "github.com/slotline/slotline/internal/catalog/domain"
	"github.com/slotline/slotline/internal/config"
	"github.com/slotline/slotline/internal/observability"
	obsmiddleware "github.com/slotline/slotline/internal/observability/logger"
	obsmetrics "github.com/slotline/slotline/internal/observability/metrics"
	obstracing "github.com/slotline/slotline/internal/observability/tracing"
	"github.com/slotline/slotline/internal/payment"
	paymentdomain "github.com/slotline/slotline/internal/payment/domain"
	"github.com/slotline/slotline/internal/pricing"
	pricingdomain "github.com/slotline/slotline/internal/pricing/domain"
	"github.com/slotline/slotline/internal/ratelimit"
	"github.com/slotline/slotline/internal/subscription"
	subscriptiondomain "github.com/slotline/slotline/internal/subscription/domain"
	"github.com/slotline/slotline/internal/tracking"
	trackingdomain "github.com/slotline/slotline/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	catalog.Module,
	availability.Module,
	pricing.Module,
	tracking.Module,
	payment.Module,
	booking.Module,
	subscription.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	availabilitySvc availabilitydomain.Service
	catalogSvc      catalogdomain.Service
	pricingSvc      pricingdomain.Service
	trackingSvc     trackingdomain.Service
	paymentSvc      paymentdomain.Service
	bookingSvc      bookingdomain.Service
	subscriptionSvc subscriptiondomain.Service

	intentLimiter *rateLimiter
	clickLimiter  *rateLimiter
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	AvailabilitySvc availabilitydomain.Service
	CatalogSvc      catalogdomain.Service
	PricingSvc      pricingdomain.Service
	TrackingSvc     trackingdomain.Service
	PaymentSvc      paymentdomain.Service
	BookingSvc      bookingdomain.Service
	SubscriptionSvc subscriptiondomain.Service

	Bucket *ratelimit.TokenBucket
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		log:    p.Log.Named("http.server"),
		genID:  p.GenID,

		availabilitySvc: p.AvailabilitySvc,
		catalogSvc:      p.CatalogSvc,
		pricingSvc:      p.PricingSvc,
		trackingSvc:     p.TrackingSvc,
		paymentSvc:      p.PaymentSvc,
		bookingSvc:      p.BookingSvc,
		subscriptionSvc: p.SubscriptionSvc,

		intentLimiter: newRateLimiter(p.Bucket, "intent", 30, time.Minute),
		clickLimiter:  newRateLimiter(p.Bucket, "click", 120, time.Minute),
	}

	svc.registerAPIRoutes()
	svc.registerPublicRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ClientContext())

	api.GET("/slots", s.ListSlots)

	api.POST("/payment-intents", s.RateLimited(s.intentLimiter), s.ClientRequired(), s.CreatePaymentIntent)

	api.POST("/bookings/confirm", s.ClientRequired(), s.ConfirmBooking)
	api.GET("/bookings/:id", s.ClientRequired(), s.GetBooking)
	api.POST("/bookings/:id/cancel", s.ClientRequired(), s.CancelBooking)

	api.GET("/subscriptions", s.ClientRequired(), s.ListSubscriptions)
	api.GET("/subscriptions/:id", s.ClientRequired(), s.GetSubscription)
	api.POST("/subscriptions/:id/cancel", s.ClientRequired(), s.CancelSubscription)
	api.POST("/subscriptions/:id/renew", s.ClientRequired(), s.RenewSubscription)

	api.GET("/tracking/:code", s.GetTrackingStats)

	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerPublicRoutes() {
	s.engine.GET("/t/:code", s.RateLimited(s.clickLimiter), s.TrackClick)
}
