package routes

import (
	"github.com/anjiri1684/homestay_booking/middleware"
	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(app *fiber.App, deps Dependencies) {
	api := app.Group("/api/v1")

	booking := api.Group("/bookings", middleware.Protected(deps.JWTSecret))
	booking.Post("", deps.Bookings.CreateBooking)
	booking.Get("/me", deps.Bookings.GetMyBookings)
	booking.Get("/:bookingId", deps.Bookings.GetBooking)
	booking.Get("/:bookingId/refund-preview", deps.Bookings.GetRefundPreview)
	booking.Post("/:bookingId/cancel", deps.Bookings.CancelBooking)
}
