package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PayoutKindHost        = "host_payout"
	PayoutKindGuestRefund = "guest_refund"
)

// Payout records money the payout provider must move for a booking: the host
// share after a stay, or a guest refund after cancellation. The provider does
// the transfer; this row only tracks its progress.
type Payout struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_payout_booking_kind" json:"booking_id"`
	Kind      string    `gorm:"size:20;not null;uniqueIndex:idx_payout_booking_kind" json:"kind"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Status    string    `gorm:"size:20;not null;default:'pending';index" json:"status"`

	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   *string        `gorm:"type:text" json:"last_error,omitempty"`
	ProviderRef *string        `gorm:"size:100" json:"provider_ref,omitempty"`
	Response    datatypes.JSON `json:"response,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
