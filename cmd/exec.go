package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trip-booking/config"
	"trip-booking/internal/handlers"
	"trip-booking/internal/services"
	"trip-booking/internal/services/payment"
	"trip-booking/internal/services/payment/paywave"
	"trip-booking/internal/services/vendor"
	"trip-booking/internal/services/verify"
	_ "trip-booking/migrations"
	"trip-booking/monitoring"
	"trip-booking/security"
	"trip-booking/utils"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer gateway.Close(ctx)

	notices := make(chan *payment.CaptureNotice, 16)
	gateway.SetNoticeChannel(notices)
	go func() {
		for {
			select {
			case n := <-notices:
				slog.Info("=> payment capture notice", "intentID", n.IntentID, "status", n.Status)
			case <-ctx.Done():
				return
			}
		}
	}()

	vendors := vendor.NewRegistryFromConfig(cfg)
	verifier := newVerifier(cfg)

	// Initialize services
	lockService := services.NewLockService(app)
	priceMonitor := services.NewPriceMonitor(redisClient, vendors, cfg)
	bookingService := services.NewBookingService(app, redisClient, lockService, vendors, gateway, verifier, pn, cfg)
	optimizationService := services.NewOptimizationService(app, redisClient, lockService, priceMonitor, pn, cfg)
	scheduler := services.NewScheduler(app, optimizationService, cfg)

	// Initialize handlers
	lockHandler := handlers.NewLockHandler(app, lockService)
	rateLimiter := security.NewRateLimiter(redisClient)
	bookingHandler := handlers.NewBookingHandler(app, bookingService, rateLimiter)
	optimizationHandler := handlers.NewOptimizationHandler(app, optimizationService)
	paymentHandler, err := handlers.NewPaymentHandler(app, cfg, notices)
	if err != nil {
		return err
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
		go serveMetrics(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		go scheduler.Run(ctx)

		// Lock endpoints
		e.Router.POST("/api/locks/lock", lockHandler.Lock)
		e.Router.POST("/api/locks/unlock", lockHandler.Unlock)
		e.Router.GET("/api/trip-options/{tripOptionId}/lock-state", lockHandler.GetLockState)

		// Booking endpoints
		e.Router.POST("/api/bookings", bookingHandler.Book)
		e.Router.POST("/api/bookings/{bookingId}/cancel", bookingHandler.Cancel)

		// Payment gateway callback
		e.Router.POST("/api/payments/paywave/notify", paymentHandler.PayWaveNotify)

		// Optimization endpoints
		e.Router.POST("/api/optimize", optimizationHandler.ReOptimize)
		e.Router.GET("/api/optimize/{tripRequestId}/prices", optimizationHandler.MonitorPrices)
		e.Router.GET("/api/optimize/{tripRequestId}/opportunities", optimizationHandler.GetOpportunities)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// newGateway picks the payment backend. Development (or missing PayWave
// credentials) runs against the simulator.
func newGateway(ctx context.Context, cfg *config.Config) (payment.Gateway, error) {
	if cfg.Environment == "development" || cfg.PayWave.ClientID == "" {
		slog.Info("using simulated payment gateway")
		return payment.NewSimGateway(), nil
	}

	return paywave.New(ctx, &paywave.Config{
		BaseURL:    cfg.PayWave.BaseURL,
		MerchantID: cfg.PayWave.MerchantID,
		ClientID:   cfg.PayWave.ClientID,
		ClientKey:  cfg.PayWave.ClientKey,
		HMACKey:    cfg.PayWave.HMACKey,
		PNSubKey:   cfg.PayWave.SubscribeKey,
		PNUUID:     cfg.PayWave.MerchantID,
		PNChannel:  cfg.PayWave.NotifyChannel,
	})
}

func newVerifier(cfg *config.Config) verify.EntityVerifier {
	if cfg.Environment == "development" {
		return &verify.StaticVerifier{Result: verify.Verified}
	}
	return verify.NewHTTPVerifier(cfg.VerifierURL)
}

// serveMetrics exposes prometheus metrics on a standalone listener so
// the scrape path stays off the API server.
func serveMetrics(port string) {
	e := echo.New()
	e.GET("/metrics", func(c echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})

	log.Printf("metrics listening on :%s", port)
	if err := e.Start(":" + port); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
