package services

import (
	"time"

	"github.com/anjiri1684/homestay_booking/models"
)

// DisplayStatus is the lifecycle status guests and admins see. It is never
// stored; every caller derives it with DeriveDisplayStatus.
type DisplayStatus string

const (
	StatusPendingPayment DisplayStatus = "pending_payment"
	StatusUpcoming       DisplayStatus = "upcoming"
	StatusCompleted      DisplayStatus = "completed"
	StatusCancelled      DisplayStatus = "cancelled"
)

// DeriveDisplayStatus applies the rules top-down; the first match wins.
func DeriveDisplayStatus(b *models.Booking, now time.Time, loc *time.Location) DisplayStatus {
	switch {
	case b.Status == models.BookingStatusCancelled:
		return StatusCancelled
	case b.Status == models.BookingStatusCompleted || b.Status == models.BookingStatusCheckedOut:
		return StatusCompleted
	case !dateOnly(now, loc).Before(dateOnly(b.CheckOut, loc)):
		return StatusCompleted
	case b.Payment.Status == models.PaymentStatusPending:
		return StatusPendingPayment
	default:
		return StatusUpcoming
	}
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// atHour places a calendar date at the given local hour.
func atHour(date time.Time, hour int, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, loc)
}
