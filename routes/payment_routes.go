package routes

import (
	"github.com/anjiri1684/homestay_booking/handlers"
	"github.com/anjiri1684/homestay_booking/middleware"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App, deps Dependencies) {
	api := app.Group("/api/v1")

	api.Post("/payments/bank-webhook", middleware.RateLimit(deps.BankWebhookPerMinute, deps.Logger), deps.Payments.BankWebhook)

	payments := api.Group("/payments/bookings/:bookingId", middleware.Protected(deps.JWTSecret))
	payments.Post("/session", deps.Payments.CreateSession)
	payments.Post("/session/regenerate", deps.Payments.RegenerateSession)
	payments.Get("/status", middleware.RateLimit(deps.StatusPollPerMinute, deps.Logger), deps.Payments.GetPaymentStatus)

	api.Use("/ws", handlers.RequireUpgrade)
	api.Get("/ws/bookings/:bookingId/payment", websocketcontrib.New(deps.PaymentSocket.ServePaymentStatus))
}
