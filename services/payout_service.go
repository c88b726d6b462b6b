package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anjiri1684/homestay_booking/models"
)

type TransferRequest struct {
	PayoutID  uuid.UUID
	BookingID uuid.UUID
	Kind      string
	Amount    int64
	Reference string
}

type TransferReceipt struct {
	ProviderRef string
	Raw         json.RawMessage
}

// PayoutGateway moves money through the payout provider.
type PayoutGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error)
}

type PayoutPage struct {
	Payouts []models.Payout `json:"payouts"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

type PayoutService struct {
	DB          *gorm.DB
	Logger      *zap.Logger
	Gateway     PayoutGateway
	MaxAttempts int
	// A payout stuck in processing longer than this is claimed again.
	StaleAfter    time.Duration
	SignalTimeout time.Duration
	Now           func() time.Time
}

func NewPayoutService(db *gorm.DB, logger *zap.Logger, gateway PayoutGateway, maxAttempts int) *PayoutService {
	return &PayoutService{
		DB:            db,
		Logger:        logger,
		Gateway:       gateway,
		MaxAttempts:   maxAttempts,
		StaleAfter:    15 * time.Minute,
		SignalTimeout: 30 * time.Second,
	}
}

func (s *PayoutService) now() time.Time { return nowOrDefault(s.Now) }

// Signal makes one immediate attempt in the background. Failures are left
// for the scheduled retry.
func (s *PayoutService) Signal(payoutID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.SignalTimeout)
		defer cancel()
		if err := s.Dispatch(ctx, payoutID); err != nil {
			s.Logger.Warn("payout attempt failed", zap.String("payout_id", payoutID.String()), zap.Error(err))
		}
	}()
}

func (s *PayoutService) claimable(q *gorm.DB, now time.Time) *gorm.DB {
	return q.Where("attempts < ? AND (status IN ? OR (status = ? AND updated_at < ?))",
		s.MaxAttempts,
		[]string{models.PayoutStatusPending, models.PayoutStatusFailed},
		models.PayoutStatusProcessing, now.Add(-s.StaleAfter),
	)
}

// Dispatch claims the payout and calls the gateway once. A payout that is
// already claimed, completed or out of attempts is left alone.
func (s *PayoutService) Dispatch(ctx context.Context, payoutID uuid.UUID) error {
	now := s.now()
	var payout models.Payout
	claimed := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := s.claimable(tx.Model(&models.Payout{}).Where("id = ?", payoutID), now).
			Updates(map[string]interface{}{
				"status":     models.PayoutStatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true
		if err := tx.First(&payout, "id = ?", payoutID).Error; err != nil {
			return err
		}
		return mirrorHostPayout(tx, &payout, models.PayoutStatusProcessing)
	})
	if err != nil || !claimed {
		return err
	}

	var booking models.Booking
	if err := s.DB.WithContext(ctx).First(&booking, "id = ?", payout.BookingID).Error; err != nil {
		return s.fail(ctx, &payout, fmt.Errorf("load booking: %w", err))
	}

	receipt, err := s.Gateway.Transfer(ctx, TransferRequest{
		PayoutID:  payout.ID,
		BookingID: payout.BookingID,
		Kind:      payout.Kind,
		Amount:    payout.Amount,
		Reference: booking.Payment.Reference,
	})
	if err != nil {
		return s.fail(ctx, &payout, err)
	}
	return s.complete(ctx, &payout, receipt)
}

func (s *PayoutService) complete(ctx context.Context, payout *models.Payout, receipt *TransferReceipt) error {
	now := s.now()
	updates := map[string]interface{}{
		"status":       models.PayoutStatusCompleted,
		"completed_at": now,
		"last_error":   nil,
	}
	if receipt != nil {
		updates["provider_ref"] = receipt.ProviderRef
		if len(receipt.Raw) > 0 {
			updates["response"] = datatypes.JSON(receipt.Raw)
		}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payout{}).Where("id = ?", payout.ID).Updates(updates).Error; err != nil {
			return err
		}
		if err := mirrorHostPayout(tx, payout, models.PayoutStatusCompleted); err != nil {
			return err
		}
		if payout.Kind == models.PayoutKindGuestRefund {
			return markTransactionRefunded(tx, payout.BookingID, SystemActor, now)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record completed payout %s: %w", payout.ID, err)
	}

	s.Logger.Info("payout completed",
		zap.String("payout_id", payout.ID.String()),
		zap.String("kind", payout.Kind),
		zap.Int64("amount", payout.Amount),
	)
	return nil
}

func (s *PayoutService) fail(ctx context.Context, payout *models.Payout, cause error) error {
	msg := cause.Error()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payout{}).Where("id = ?", payout.ID).Updates(map[string]interface{}{
			"status":     models.PayoutStatusFailed,
			"last_error": msg,
		}).Error; err != nil {
			return err
		}
		return mirrorHostPayout(tx, payout, models.PayoutStatusFailed)
	})
	if err != nil {
		s.Logger.Error("failed to record payout failure", zap.String("payout_id", payout.ID.String()), zap.Error(err))
	}
	return NewExternalDependencyError("payout transfer failed", cause)
}

func mirrorHostPayout(tx *gorm.DB, payout *models.Payout, status string) error {
	if payout.Kind != models.PayoutKindHost {
		return nil
	}
	return tx.Model(&models.Booking{}).
		Where("id = ?", payout.BookingID).
		Update("host_payout_status", status).Error
}

// ScheduleHostPayouts creates the host payout of every paid stay that has
// ended. Existing payouts are left as they are.
func (s *PayoutService) ScheduleHostPayouts(ctx context.Context) (int, error) {
	var bookings []models.Booking
	if err := s.DB.WithContext(ctx).
		Where("payment_status = ? AND status <> ? AND check_out <= ? AND host_payout_status = ?",
			models.PaymentStatusCompleted, models.BookingStatusCancelled, s.now(), models.PayoutStatusPending).
		Find(&bookings).Error; err != nil {
		return 0, fmt.Errorf("failed to find finished stays: %w", err)
	}

	created := 0
	for _, b := range bookings {
		payout := models.Payout{
			BookingID: b.ID,
			Kind:      models.PayoutKindHost,
			Amount:    b.Pricing.HostAmount,
			Status:    models.PayoutStatusPending,
		}
		res := s.DB.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "booking_id"}, {Name: "kind"}},
				DoNothing: true,
			}).
			Create(&payout)
		if res.Error != nil {
			return created, fmt.Errorf("failed to create host payout for %s: %w", b.ID, res.Error)
		}
		if res.RowsAffected > 0 {
			created++
		}
	}
	if created > 0 {
		s.Logger.Info("host payouts scheduled", zap.Int("count", created))
	}
	return created, nil
}

// DispatchDue attempts every payout that is still owed and has attempts left.
// It returns how many attempts did not fail.
func (s *PayoutService) DispatchDue(ctx context.Context) (int, error) {
	var ids []uuid.UUID
	if err := s.claimable(s.DB.WithContext(ctx).Model(&models.Payout{}), s.now()).
		Order("created_at").
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find due payouts: %w", err)
	}

	succeeded := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		if err := s.Dispatch(ctx, id); err != nil {
			s.Logger.Warn("payout attempt failed", zap.String("payout_id", id.String()), zap.Error(err))
			continue
		}
		succeeded++
	}
	return succeeded, nil
}

func (s *PayoutService) List(ctx context.Context, status string, p Page) (*PayoutPage, error) {
	p = p.normalize()
	query := func() *gorm.DB {
		q := s.DB.WithContext(ctx).Model(&models.Payout{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, err
	}
	var payouts []models.Payout
	if err := query().Order("created_at DESC").Offset(p.offset()).Limit(p.Limit).Find(&payouts).Error; err != nil {
		return nil, err
	}
	return &PayoutPage{Payouts: payouts, Total: total, Page: p.Page, Limit: p.Limit}, nil
}
