package services

import (
	"github.com/shopspring/decimal"

	"github.com/anjiri1684/homestay_booking/models"
)

// hostShare is the fixed part of every booking total owed to the host.
var hostShare = decimal.RequireFromString("0.90")

// MaxBookingTotal caps a single booking total in VND. Line items are checked
// against it before they are summed, so the sum cannot overflow.
const MaxBookingTotal int64 = 1_000_000_000_000

// roundToUnit rounds half away from zero to a whole currency unit.
func roundToUnit(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// SplitPricing totals the priced line items and splits the total 90/10.
// The host share is rounded and the platform commission takes the remainder,
// so HostAmount + PlatformCommission always equals TotalAmount.
func SplitPricing(basePrice, cleaningFee, serviceFee int64) (models.BookingPricing, error) {
	if basePrice <= 0 {
		return models.BookingPricing{}, NewValidationError("base price must be positive")
	}
	if cleaningFee < 0 || serviceFee < 0 {
		return models.BookingPricing{}, NewValidationError("fees cannot be negative")
	}

	if basePrice > MaxBookingTotal || cleaningFee > MaxBookingTotal || serviceFee > MaxBookingTotal {
		return models.BookingPricing{}, NewValidationError("line item exceeds the maximum booking total")
	}
	sum := decimal.NewFromInt(basePrice).Add(decimal.NewFromInt(cleaningFee)).Add(decimal.NewFromInt(serviceFee))
	if sum.GreaterThan(decimal.NewFromInt(MaxBookingTotal)) {
		return models.BookingPricing{}, NewValidationError("booking total exceeds the maximum")
	}

	total := sum.IntPart()
	host := roundToUnit(decimal.NewFromInt(total).Mul(hostShare))

	return models.BookingPricing{
		BasePrice:          basePrice,
		CleaningFee:        cleaningFee,
		ServiceFee:         serviceFee,
		TotalAmount:        total,
		HostAmount:         host,
		PlatformCommission: total - host,
	}, nil
}
