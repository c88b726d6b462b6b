package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/anjiri1684/homestay_booking/models"
)

type RefundTier string

const (
	RefundTierFull    RefundTier = "full"
	RefundTierPartial RefundTier = "partial"
	RefundTierNone    RefundTier = "none"
)

// CancellationLockout is the window before check-in in which a booking can no
// longer be cancelled.
const CancellationLockout = 24 * time.Hour

const (
	fullRefundAfterDays    = 7
	partialRefundAfterDays = 3
	refundProcessTime      = "5-7 business days"
)

var partialRefundRate = decimal.RequireFromString("0.5")

// RefundPreview is the outcome of the refund policy for one moment in time.
type RefundPreview struct {
	RefundAmount       int64      `json:"refund_amount"`
	RefundPercentage   int        `json:"refund_percentage"`
	Tier               RefundTier `json:"policy"`
	ServiceFeeDeducted int64      `json:"service_fee_deducted"`
	ProcessTime        string     `json:"process_time,omitempty"`
}

func HoursUntilCheckIn(now, checkIn time.Time) float64 {
	return checkIn.Sub(now).Hours()
}

// CanCancel is the gate checked before any refund is computed.
func CanCancel(b *models.Booking, now time.Time, loc *time.Location) bool {
	switch DeriveDisplayStatus(b, now, loc) {
	case StatusPendingPayment, StatusUpcoming:
	default:
		return false
	}
	return HoursUntilCheckIn(now, b.CheckIn) > CancellationLockout.Hours()
}

// ComputeRefund maps the time left before check-in to a refund tier.
//
//	more than 7 days   full: total minus the service fee
//	3 to 7 days        partial: half the total
//	less than 3 days   none
//
// The partial amount never exceeds the full-tier amount, so the refund only
// shrinks as check-in approaches even when the service fee is large.
func ComputeRefund(totalAmount, serviceFee int64, now, checkIn time.Time) RefundPreview {
	days := HoursUntilCheckIn(now, checkIn) / 24
	fullAmount := totalAmount - serviceFee
	if fullAmount < 0 {
		fullAmount = 0
	}

	switch {
	case days > fullRefundAfterDays:
		return RefundPreview{
			RefundAmount:       fullAmount,
			RefundPercentage:   100,
			Tier:               RefundTierFull,
			ServiceFeeDeducted: serviceFee,
			ProcessTime:        refundProcessTime,
		}
	case days >= partialRefundAfterDays:
		preview := RefundPreview{
			RefundAmount:     roundToUnit(decimal.NewFromInt(totalAmount).Mul(partialRefundRate)),
			RefundPercentage: 50,
			Tier:             RefundTierPartial,
			ProcessTime:      refundProcessTime,
		}
		if preview.RefundAmount > fullAmount {
			preview.RefundAmount = fullAmount
			preview.ServiceFeeDeducted = serviceFee
		}
		return preview
	default:
		return RefundPreview{Tier: RefundTierNone}
	}
}
