package routes

import (
	"github.com/anjiri1684/homestay_booking/handlers"
	"go.uber.org/zap"
)

// Dependencies carries the handlers and settings every route group needs.
type Dependencies struct {
	Bookings      *handlers.BookingHandler
	Payments      *handlers.PaymentHandler
	Admin         *handlers.AdminHandler
	PaymentSocket *handlers.PaymentSocketHandler

	JWTSecret            string
	StatusPollPerMinute  int
	BankWebhookPerMinute int
	Logger               *zap.Logger
}
