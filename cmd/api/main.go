package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	config "github.com/anjiri1684/homestay_booking/configs"
	"github.com/anjiri1684/homestay_booking/database"
	"github.com/anjiri1684/homestay_booking/handlers"
	"github.com/anjiri1684/homestay_booking/jobs"
	"github.com/anjiri1684/homestay_booking/notifications"
	"github.com/anjiri1684/homestay_booking/payments"
	"github.com/anjiri1684/homestay_booking/routes"
	"github.com/anjiri1684/homestay_booking/services"
	"github.com/anjiri1684/homestay_booking/utils"
	"github.com/anjiri1684/homestay_booking/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("🔥 %v", err)
	}

	zl, err := utils.NewLogger(cfg.IsProduction())
	if err != nil {
		log.Fatalf("🔥 failed to build logger: %v", err)
	}
	defer zl.Sync()

	loc, err := cfg.Location()
	if err != nil {
		zl.Fatal("invalid timezone", zap.Error(err))
	}

	db, err := database.ConnectDB(cfg, zl)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zl.Fatal("failed to migrate database", zap.Error(err))
	}

	hub := websocket.NewHub(zl)
	mailer := notifications.NewBookingMailer(
		notifications.NewBrevoService(cfg.BrevoAPIKey, cfg.EmailSender, cfg.EmailSenderName, zl),
		zl, loc,
	)
	if cfg.PayoutAPIURL == "" {
		zl.Warn("PAYOUT_API_URL is not set; payouts will stay pending until it is configured")
	}

	payoutService := services.NewPayoutService(db, zl,
		payments.NewHTTPPayoutGateway(cfg.PayoutAPIURL, cfg.PayoutClientID, cfg.PayoutClientSecret, zl),
		cfg.PayoutMaxAttempts,
	)

	bookingService := services.NewBookingService(db, zl, utils.NewReferenceGenerator(cfg.ReferenceSecret), loc, cfg.CheckInHour, cfg.CheckOutHour)
	bookingService.Payouts = payoutService
	bookingService.Notifier = mailer
	bookingService.Publisher = hub

	sessionService := services.NewPaymentSessionService(db, zl,
		payments.NewVietQRClient(cfg.VietQRAPIURL, cfg.VietQRClientID, cfg.VietQRAPIKey, cfg.VietQRTemplate, zl),
		services.BankAccount{BankID: cfg.BankID, AccountNo: cfg.BankAccountNo, AccountName: cfg.BankAccountName},
		cfg.PaymentSessionTTL, loc,
	)
	sessionService.Publisher = hub

	reconciliationService := services.NewReconciliationService(db, zl, loc, cfg.MatchAmountTolerance, cfg.AutoMatchGrace)
	reconciliationService.Notifier = mailer
	reconciliationService.Publisher = hub

	c := cron.New(cron.WithLocation(loc))
	if _, err := jobs.NewPayoutJob(payoutService, zl).Register(c, cfg.PayoutCron); err != nil {
		zl.Fatal("failed to schedule payout job", zap.Error(err))
	}
	c.Start()
	zl.Info("✅ payout job scheduled", zap.String("schedule", cfg.PayoutCron))

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "Homestay Booking",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler(zl),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Webhook-Secret, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: "Content-Length",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   cfg.Timezone,
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	deps := routes.Dependencies{
		Bookings:             handlers.NewBookingHandler(bookingService, zl, loc),
		Payments:             handlers.NewPaymentHandler(sessionService, reconciliationService, zl, cfg.BankWebhookSecret),
		Admin:                handlers.NewAdminHandler(reconciliationService, bookingService, payoutService, zl, loc),
		PaymentSocket:        handlers.NewPaymentSocketHandler(sessionService, hub, zl, cfg.JWTSecret),
		JWTSecret:            cfg.JWTSecret,
		StatusPollPerMinute:  cfg.StatusPollPerMinute,
		BankWebhookPerMinute: cfg.BankWebhookPerMinute,
		Logger:               zl,
	}
	routes.PublicRoutes(app)
	routes.BookingRoutes(app, deps)
	routes.PaymentRoutes(app, deps)
	routes.AdminRoutes(app, deps)

	go func() {
		zl.Info("✅ server is running", zap.String("port", cfg.AppPort))
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			zl.Fatal("🔥 server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down")

	<-c.Stop().Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		zl.Error("server shutdown failed", zap.Error(err))
	}
}
