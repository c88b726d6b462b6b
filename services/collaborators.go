package services

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anjiri1684/homestay_booking/models"
)

// SystemActor is recorded when the platform itself performs an action.
const SystemActor = "system"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID    string
	Admin bool
}

func (a Actor) owns(b *models.Booking) bool {
	return a.Admin || a.ID == b.GuestID.String()
}

// Notifier tells the guest about payment and cancellation outcomes.
// Implementations must not block the caller.
type Notifier interface {
	PaymentConfirmed(b *models.Booking)
	BookingCancelled(b *models.Booking)
}

// PaymentStatusPublisher is told whenever the payment state of a booking may
// have changed.
type PaymentStatusPublisher interface {
	Publish(bookingID uuid.UUID)
}

// PayoutSignaler asks for a payout to be attempted out of band.
type PayoutSignaler interface {
	Signal(payoutID uuid.UUID)
}

type nopNotifier struct{}

func (nopNotifier) PaymentConfirmed(*models.Booking) {}
func (nopNotifier) BookingCancelled(*models.Booking) {}

type nopPublisher struct{}

func (nopPublisher) Publish(uuid.UUID) {}

type nopSignaler struct{}

func (nopSignaler) Signal(uuid.UUID) {}

func nowOrDefault(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

// lockForUpdate takes a row lock where the dialect has one. SQLite serializes
// writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

var terminalBookingStatuses = []string{
	models.BookingStatusCancelled,
	models.BookingStatusCompleted,
	models.BookingStatusCheckedOut,
}
