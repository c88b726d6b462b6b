package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anjiri1684/homestay_booking/models"
	"github.com/anjiri1684/homestay_booking/utils"
)

// BookingView is a stored booking together with its derived display status.
type BookingView struct {
	*models.Booking
	DisplayStatus DisplayStatus `json:"status"`
}

type CreateBookingInput struct {
	GuestID    uuid.UUID
	HomestayID uuid.UUID
	GuestName  string
	GuestEmail string
	// Calendar dates; only the date part is used.
	CheckInDate  time.Time
	CheckOutDate time.Time
	Guests       int

	BasePrice   int64
	CleaningFee int64
	ServiceFee  int64
}

// CancellationPreview is what a guest sees before confirming a cancellation.
// Refund is nil whenever the booking cannot be cancelled.
type CancellationPreview struct {
	CanCancel         bool           `json:"can_cancel"`
	HoursUntilCheckIn float64        `json:"hours_until_check_in"`
	Refund            *RefundPreview `json:"refund,omitempty"`
}

type BookingService struct {
	DB           *gorm.DB
	Logger       *zap.Logger
	Location     *time.Location
	CheckInHour  int
	CheckOutHour int
	References   *utils.ReferenceGenerator

	Payouts   PayoutSignaler
	Notifier  Notifier
	Publisher PaymentStatusPublisher
	Now       func() time.Time
}

func NewBookingService(db *gorm.DB, logger *zap.Logger, refs *utils.ReferenceGenerator, loc *time.Location, checkInHour, checkOutHour int) *BookingService {
	return &BookingService{
		DB:           db,
		Logger:       logger,
		Location:     loc,
		CheckInHour:  checkInHour,
		CheckOutHour: checkOutHour,
		References:   refs,
		Payouts:      nopSignaler{},
		Notifier:     nopNotifier{},
		Publisher:    nopPublisher{},
	}
}

func (s *BookingService) now() time.Time { return nowOrDefault(s.Now) }

func (s *BookingService) view(b *models.Booking) *BookingView {
	return &BookingView{Booking: b, DisplayStatus: DeriveDisplayStatus(b, s.now(), s.Location)}
}

// Create stores a new booking awaiting payment. Line items arrive already
// priced; only the split is computed here.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (*BookingView, error) {
	if in.GuestID == uuid.Nil || in.HomestayID == uuid.Nil {
		return nil, NewValidationError("guest and homestay are required")
	}
	if in.Guests < 1 {
		return nil, NewValidationError("at least one guest is required")
	}

	now := s.now()
	checkInDate := dateOnly(in.CheckInDate, s.Location)
	checkOutDate := dateOnly(in.CheckOutDate, s.Location)
	if !checkOutDate.After(checkInDate) {
		return nil, NewValidationError("check-out must be after check-in")
	}
	if checkInDate.Before(dateOnly(now, s.Location)) {
		return nil, NewValidationError("check-in cannot be in the past")
	}

	pricing, err := SplitPricing(in.BasePrice, in.CleaningFee, in.ServiceFee)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	booking := models.Booking{
		ID:         id,
		GuestID:    in.GuestID,
		HomestayID: in.HomestayID,
		GuestName:  strings.TrimSpace(in.GuestName),
		GuestEmail: strings.TrimSpace(in.GuestEmail),
		CheckIn:    atHour(checkInDate, s.CheckInHour, s.Location).UTC(),
		CheckOut:   atHour(checkOutDate, s.CheckOutHour, s.Location).UTC(),
		Guests:     in.Guests,
		Status:     models.BookingStatusPending,
		Pricing:    pricing,
		Payment: models.BookingPayment{
			Status:    models.PaymentStatusPending,
			Reference: s.References.Derive(id),
		},
		HostPayout: models.BookingHostPayout{Status: models.PayoutStatusPending},
	}
	if err := s.DB.WithContext(ctx).Create(&booking).Error; err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.Logger.Info("booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.Int64("total_amount", pricing.TotalAmount),
	)
	return s.view(&booking), nil
}

func (s *BookingService) Get(ctx context.Context, id uuid.UUID, actor Actor) (*BookingView, error) {
	b, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return s.view(b), nil
}

func (s *BookingService) ListMine(ctx context.Context, guestID uuid.UUID) ([]BookingView, error) {
	var bookings []models.Booking
	if err := s.DB.WithContext(ctx).
		Where("guest_id = ?", guestID).
		Order("created_at DESC").
		Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	views := make([]BookingView, 0, len(bookings))
	for i := range bookings {
		views = append(views, *s.view(&bookings[i]))
	}
	return views, nil
}

// RefundPreview is advisory; Cancel recomputes the refund itself.
func (s *BookingService) RefundPreview(ctx context.Context, id uuid.UUID, actor Actor) (*CancellationPreview, error) {
	b, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	preview := &CancellationPreview{
		CanCancel:         CanCancel(b, now, s.Location),
		HoursUntilCheckIn: HoursUntilCheckIn(now, b.CheckIn),
	}
	if preview.CanCancel {
		refund := ComputeRefund(b.Pricing.TotalAmount, b.Pricing.ServiceFee, now, b.CheckIn)
		preview.Refund = &refund
	}
	return preview, nil
}

// Cancel moves the booking to cancelled and stores the refund computed at
// this moment. A paid booking with a refund due gets a guest refund payout in
// the same transaction; the transfer itself happens out of band.
func (s *BookingService) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*BookingView, error) {
	now := s.now()
	var (
		booking  models.Booking
		payoutID uuid.UUID
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&booking, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "booking not found")
		}
		if !actor.owns(&booking) {
			return NewNotFoundError("booking not found")
		}

		switch DeriveDisplayStatus(&booking, now, s.Location) {
		case StatusCancelled:
			return NewStateConflictError("booking is already cancelled")
		case StatusCompleted:
			return NewStateConflictError("booking is already completed")
		}
		if !CanCancel(&booking, now, s.Location) {
			return NewPolicyViolation("bookings cannot be cancelled within 24 hours of check-in")
		}

		refund := ComputeRefund(booking.Pricing.TotalAmount, booking.Pricing.ServiceFee, now, booking.CheckIn)
		updates := map[string]interface{}{
			"status":                            models.BookingStatusCancelled,
			"cancellation_cancelled_at":         now,
			"cancellation_cancelled_by":         actor.ID,
			"cancellation_refund_amount":        refund.RefundAmount,
			"cancellation_refund_percentage":    refund.RefundPercentage,
			"cancellation_refund_tier":          string(refund.Tier),
			"cancellation_service_fee_deducted": refund.ServiceFeeDeducted,
		}
		if r := strings.TrimSpace(reason); r != "" {
			updates["cancellation_reason"] = r
		}

		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status NOT IN ?", booking.ID, terminalBookingStatuses).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewStateConflictError("booking was changed by another request")
		}

		if booking.Payment.Status == models.PaymentStatusCompleted && refund.RefundAmount > 0 {
			payout := models.Payout{
				BookingID: booking.ID,
				Kind:      models.PayoutKindGuestRefund,
				Amount:    refund.RefundAmount,
				Status:    models.PayoutStatusPending,
			}
			if err := tx.Create(&payout).Error; err != nil {
				return fmt.Errorf("failed to record refund payout: %w", err)
			}
			payoutID = payout.ID
		}

		return tx.First(&booking, "id = ?", booking.ID).Error
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("booking cancelled",
		zap.String("booking_id", booking.ID.String()),
		zap.String("actor", actor.ID),
		zap.Int64p("refund_amount", booking.Cancellation.RefundAmount),
	)

	if payoutID != uuid.Nil {
		s.Payouts.Signal(payoutID)
	}
	s.Notifier.BookingCancelled(&booking)
	s.Publisher.Publish(booking.ID)
	return s.view(&booking), nil
}

// TransitionPaymentCompleted records a payment verified outside the bank feed.
// Repeating it for an already paid booking is a no-op.
func (s *BookingService) TransitionPaymentCompleted(ctx context.Context, id uuid.UUID, txRef string, actor Actor) (*BookingView, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, NewValidationError("transaction reference is required")
	}

	now := s.now()
	var (
		booking models.Booking
		changed bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&booking, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "booking not found")
		}
		if booking.Payment.Status == models.PaymentStatusCompleted {
			if booking.Payment.TransactionID != nil && *booking.Payment.TransactionID != txRef {
				s.Logger.Warn("payment already completed with another reference",
					zap.String("booking_id", booking.ID.String()),
					zap.String("requested_ref", txRef),
				)
			}
			return nil
		}
		if booking.IsTerminal() {
			return NewStateConflictError(fmt.Sprintf("booking is %s", booking.Status))
		}

		err := completePayment(tx, booking.ID, paymentCompletion{
			TransactionRef: txRef,
			Method:         models.VerificationAdminMarked,
			VerifiedBy:     actor.ID,
		}, now)
		if err != nil {
			return err
		}
		changed = true
		return tx.First(&booking, "id = ?", booking.ID).Error
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.Logger.Info("payment marked completed",
			zap.String("booking_id", booking.ID.String()),
			zap.String("actor", actor.ID),
		)
		s.Notifier.PaymentConfirmed(&booking)
		s.Publisher.Publish(booking.ID)
	}
	return s.view(&booking), nil
}

func (s *BookingService) load(ctx context.Context, id uuid.UUID, actor Actor) (*models.Booking, error) {
	var b models.Booking
	if err := s.DB.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "booking not found")
	}
	if !actor.owns(&b) {
		return nil, NewNotFoundError("booking not found")
	}
	return &b, nil
}

type paymentCompletion struct {
	TransactionRef   string
	Method           string
	VerifiedBy       string
	AmountDifference int64
	Flagged          bool
}

// completePayment flips a pending, non-terminal booking to paid and confirmed.
// It only succeeds for the first caller; everyone else gets a StateConflict.
func completePayment(tx *gorm.DB, bookingID uuid.UUID, p paymentCompletion, now time.Time) error {
	var taken int64
	if err := tx.Model(&models.Booking{}).
		Where("payment_transaction_id = ? AND id <> ?", p.TransactionRef, bookingID).
		Count(&taken).Error; err != nil {
		return err
	}
	if taken > 0 {
		return NewStateConflictError("transaction reference already pays another booking")
	}

	res := tx.Model(&models.Booking{}).
		Where("id = ? AND payment_status = ? AND status NOT IN ?", bookingID, models.PaymentStatusPending, terminalBookingStatuses).
		Updates(map[string]interface{}{
			"status":                      models.BookingStatusConfirmed,
			"payment_status":              models.PaymentStatusCompleted,
			"payment_transaction_id":      p.TransactionRef,
			"payment_completed_at":        now,
			"payment_verification_method": p.Method,
			"payment_verified_by":         p.VerifiedBy,
			"payment_amount_flagged":      p.Flagged,
			"payment_amount_difference":   p.AmountDifference,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return NewStateConflictError("transaction reference already pays another booking")
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return NewStateConflictError("booking is no longer awaiting payment")
	}
	return nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewNotFoundError(msg)
	}
	return err
}
