package notifications

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/anjiri1684/homestay_booking/models"
)

type Sender interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlContent string) error
}

// BookingMailer sends guest e-mails in the background. A failed send is
// logged and otherwise ignored.
type BookingMailer struct {
	Sender   Sender
	Logger   *zap.Logger
	Location *time.Location
	Timeout  time.Duration
	// async is false in tests so sends are observable synchronously.
	async bool
}

func NewBookingMailer(sender Sender, logger *zap.Logger, loc *time.Location) *BookingMailer {
	return &BookingMailer{Sender: sender, Logger: logger, Location: loc, Timeout: 15 * time.Second, async: true}
}

func (m *BookingMailer) PaymentConfirmed(b *models.Booking) {
	subject := "Your homestay booking is confirmed"
	body := fmt.Sprintf(
		"<h1>Payment received</h1><p>Hi %s,</p><p>We received %s for your stay from %s to %s. Your booking is confirmed.</p><p>Transfer reference: <b>%s</b></p>",
		html.EscapeString(m.name(b)),
		formatVND(b.Pricing.TotalAmount),
		b.CheckIn.In(m.Location).Format("02/01/2006"),
		b.CheckOut.In(m.Location).Format("02/01/2006"),
		html.EscapeString(b.Payment.Reference),
	)
	m.dispatch(b, subject, body)
}

func (m *BookingMailer) BookingCancelled(b *models.Booking) {
	subject := "Your homestay booking was cancelled"
	refund := "<p>No payment was taken, so there is nothing to refund.</p>"
	if b.Payment.Status == models.PaymentStatusCompleted {
		amount := int64(0)
		if b.Cancellation.RefundAmount != nil {
			amount = *b.Cancellation.RefundAmount
		}
		if amount > 0 {
			refund = fmt.Sprintf("<p>A refund of <b>%s</b> will reach your account within 5-7 business days.</p>", formatVND(amount))
		} else {
			refund = "<p>This cancellation is not eligible for a refund.</p>"
		}
	}
	body := fmt.Sprintf(
		"<h1>Booking cancelled</h1><p>Hi %s,</p><p>Your stay from %s to %s has been cancelled.</p>%s",
		html.EscapeString(m.name(b)),
		b.CheckIn.In(m.Location).Format("02/01/2006"),
		b.CheckOut.In(m.Location).Format("02/01/2006"),
		refund,
	)
	m.dispatch(b, subject, body)
}

func (m *BookingMailer) name(b *models.Booking) string {
	if b.GuestName != "" {
		return b.GuestName
	}
	return "there"
}

func (m *BookingMailer) dispatch(b *models.Booking, subject, body string) {
	if b.GuestEmail == "" {
		m.Logger.Debug("no guest email on booking, skipping", zap.String("booking_id", b.ID.String()))
		return
	}
	send := func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.Timeout)
		defer cancel()
		if err := m.Sender.Send(ctx, b.GuestEmail, b.GuestName, subject, body); err != nil {
			m.Logger.Warn("failed to send email",
				zap.String("booking_id", b.ID.String()),
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}
	if m.async {
		go send()
		return
	}
	send()
}

var vndPrinter = message.NewPrinter(language.Vietnamese)

// formatVND renders 1500000 as "1.500.000 ₫".
func formatVND(amount int64) string {
	return vndPrinter.Sprintf("%d ₫", amount)
}
