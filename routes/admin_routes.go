package routes

import (
	"github.com/anjiri1684/homestay_booking/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, deps Dependencies) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(deps.JWTSecret), middleware.AdminRequired())

	transactions := admin.Group("/transactions")
	transactions.Get("", deps.Admin.ListTransactions)
	transactions.Post("/:transactionId/match", deps.Admin.MatchTransaction)
	transactions.Post("/:transactionId/ignore", deps.Admin.IgnoreTransaction)

	admin.Get("/statistics", deps.Admin.GetStatistics)
	admin.Post("/bookings/:bookingId/mark-paid", deps.Admin.MarkBookingPaid)
	admin.Get("/payouts", deps.Admin.ListPayouts)
}
