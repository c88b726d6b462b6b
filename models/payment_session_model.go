package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentSession is the QR bank-transfer instruction of a booking. There is at
// most one row per booking; regeneration rewrites it in place.
type PaymentSession struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"booking_id"`
	Reference string    `gorm:"size:32;not null;index" json:"reference"`
	Amount    int64     `gorm:"not null" json:"amount"`
	QRPayload string    `gorm:"type:text;not null" json:"qr_payload"`

	BankID          string `gorm:"size:20" json:"bank_id"`
	BankAccountNo   string `gorm:"size:50" json:"bank_account_no"`
	BankAccountName string `gorm:"size:255" json:"bank_account_name"`

	ExpiresAt  time.Time `gorm:"not null" json:"expires_at"`
	Generation int       `gorm:"not null;default:1" json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *PaymentSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
