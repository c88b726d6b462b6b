package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Raw booking statuses as stored. The status shown to guests is derived from
// these together with payment state and dates.
const (
	BookingStatusPending    = "pending"
	BookingStatusConfirmed  = "confirmed"
	BookingStatusCheckedOut = "checked_out"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

// How a completed payment was verified.
const (
	VerificationBankMatch   = "bank_match"
	VerificationManualMatch = "manual_match"
	VerificationAdminMarked = "admin_marked"
)

const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

type BookingPricing struct {
	BasePrice          int64 `gorm:"not null" json:"base_price"`
	CleaningFee        int64 `gorm:"not null;default:0" json:"cleaning_fee"`
	ServiceFee         int64 `gorm:"not null;default:0" json:"service_fee"`
	TotalAmount        int64 `gorm:"not null" json:"total_amount"`
	HostAmount         int64 `gorm:"not null" json:"host_amount"`
	PlatformCommission int64 `gorm:"not null" json:"platform_commission"`
}

type BookingPayment struct {
	Status        string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Reference     string     `gorm:"size:32;not null;uniqueIndex" json:"reference"`
	TransactionID *string    `gorm:"size:100;uniqueIndex" json:"transaction_id,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	VerificationMethod *string `gorm:"size:20" json:"verification_method,omitempty"`
	VerifiedBy         *string `gorm:"size:100" json:"verified_by,omitempty"`
	// Set when the received amount differed from TotalAmount.
	AmountFlagged    bool  `gorm:"not null;default:false" json:"amount_flagged"`
	AmountDifference int64 `gorm:"not null;default:0" json:"amount_difference"`
}

type BookingHostPayout struct {
	Status string `gorm:"size:20;not null;default:'pending'" json:"status"`
}

// BookingCancellation keeps the refund figures computed when the booking was
// cancelled. They are never recomputed afterwards.
type BookingCancellation struct {
	Reason             *string    `gorm:"type:text" json:"reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *string    `gorm:"size:100" json:"cancelled_by,omitempty"`
	RefundAmount       *int64     `json:"refund_amount,omitempty"`
	RefundPercentage   *int       `json:"refund_percentage,omitempty"`
	RefundTier         *string    `gorm:"size:10" json:"refund_tier,omitempty"`
	ServiceFeeDeducted *int64     `json:"service_fee_deducted,omitempty"`
}

type Booking struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GuestID    uuid.UUID `gorm:"type:uuid;not null;index" json:"guest_id"`
	HomestayID uuid.UUID `gorm:"type:uuid;not null;index" json:"homestay_id"`
	GuestName  string    `gorm:"size:255" json:"guest_name"`
	GuestEmail string    `gorm:"size:255" json:"guest_email"`

	// Instants at which the stay starts and ends (check-in / check-out hour).
	CheckIn  time.Time `gorm:"not null;index" json:"check_in"`
	CheckOut time.Time `gorm:"not null;index" json:"check_out"`
	Guests   int       `gorm:"not null" json:"guests"`

	Status       string              `gorm:"size:20;not null;default:'pending'" json:"raw_status"`
	Pricing      BookingPricing      `gorm:"embedded;embeddedPrefix:pricing_" json:"pricing"`
	Payment      BookingPayment      `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	HostPayout   BookingHostPayout   `gorm:"embedded;embeddedPrefix:host_payout_" json:"host_payout"`
	Cancellation BookingCancellation `gorm:"embedded;embeddedPrefix:cancellation_" json:"cancellation"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether the stored status can no longer change.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case BookingStatusCancelled, BookingStatusCompleted, BookingStatusCheckedOut:
		return true
	}
	return false
}
