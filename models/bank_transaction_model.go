package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TransactionStatusUnmatched = "unmatched"
	TransactionStatusMatched   = "matched"
	TransactionStatusRefunded  = "refunded"
	TransactionStatusIgnored   = "ignored"
)

// transactionTransitions lists the forward moves of a bank transaction.
var transactionTransitions = map[string][]string{
	TransactionStatusUnmatched: {TransactionStatusMatched, TransactionStatusIgnored},
	TransactionStatusMatched:   {TransactionStatusRefunded},
	TransactionStatusRefunded:  {},
	TransactionStatusIgnored:   {},
}

func CanTransitionTransaction(from, to string) bool {
	for _, s := range transactionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BankTransaction is one line of an ingested bank statement.
type BankTransaction struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID   string    `gorm:"size:100;not null;uniqueIndex" json:"transaction_id"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Content         string    `gorm:"type:text" json:"content"`
	BankName        string    `gorm:"size:100" json:"bank_name"`
	AccountNumber   string    `gorm:"size:50" json:"account_number"`
	TransactionDate time.Time `gorm:"not null;index" json:"transaction_date"`

	Status           string     `gorm:"size:20;not null;default:'unmatched';index" json:"status"`
	MatchedBookingID *uuid.UUID `gorm:"type:uuid;index" json:"matched_booking_id,omitempty"`
	MatchedBy        *string    `gorm:"size:100" json:"matched_by,omitempty"`
	MatchedAt        *time.Time `json:"matched_at,omitempty"`
	Notes            *string    `gorm:"type:text" json:"notes,omitempty"`
	AmountDifference int64      `gorm:"not null;default:0" json:"amount_difference"`
	Flagged          bool       `gorm:"not null;default:false" json:"flagged"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *BankTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

const (
	AuditActionMatched  = "matched"
	AuditActionIgnored  = "ignored"
	AuditActionRefunded = "refunded"
)

// Amount comparison outcome recorded on every match.
const (
	MatchFlagExact           = "exact"
	MatchFlagWithinTolerance = "within_tolerance"
	MatchFlagOutOfTolerance  = "out_of_tolerance"
)

// MatchAudit is the append-only trail of reconciliation decisions.
type MatchAudit struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID    string         `gorm:"size:100;not null;index" json:"transaction_id"`
	BookingID        *uuid.UUID     `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	Action           string         `gorm:"size:20;not null" json:"action"`
	ActorID          string         `gorm:"size:100;not null" json:"actor_id"`
	ExpectedAmount   int64          `json:"expected_amount"`
	ReceivedAmount   int64          `json:"received_amount"`
	AmountDifference int64          `json:"amount_difference"`
	Flag             string         `gorm:"size:20" json:"flag"`
	Details          datatypes.JSON `json:"details,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (a *MatchAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
