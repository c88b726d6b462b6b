package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anjiri1684/homestay_booking/models"
)

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
	SessionCancelled SessionStatus = "cancelled"
)

// BankAccount is the receiving account printed on every QR code.
type BankAccount struct {
	BankID      string
	AccountNo   string
	AccountName string
}

type QRRequest struct {
	Amount    int64
	Reference string
	Account   BankAccount
}

// QRGenerator renders the payload a banking app scans.
type QRGenerator interface {
	Generate(ctx context.Context, req QRRequest) (string, error)
}

// SessionStatusView answers a status poll.
type SessionStatusView struct {
	BookingID        uuid.UUID     `json:"booking_id"`
	Status           SessionStatus `json:"status"`
	Reference        string        `json:"reference"`
	Amount           int64         `json:"amount"`
	ExpiresAt        *time.Time    `json:"expires_at,omitempty"`
	SecondsRemaining int64         `json:"seconds_remaining"`
}

type PaymentSessionService struct {
	DB      *gorm.DB
	Logger  *zap.Logger
	QR      QRGenerator
	Account BankAccount
	TTL     time.Duration
	// Location drives the date-only rules of the booking status.
	Location *time.Location
	// Publisher is told about every newly issued session so open status
	// subscriptions leave the expired state.
	Publisher PaymentStatusPublisher
	Now       func() time.Time
}

func NewPaymentSessionService(db *gorm.DB, logger *zap.Logger, qr QRGenerator, account BankAccount, ttl time.Duration, loc *time.Location) *PaymentSessionService {
	return &PaymentSessionService{
		DB:        db,
		Logger:    logger,
		QR:        qr,
		Account:   account,
		TTL:       ttl,
		Location:  loc,
		Publisher: nopPublisher{},
	}
}

func (s *PaymentSessionService) now() time.Time { return nowOrDefault(s.Now) }

// CreateSession returns the active session of a booking, issuing one when
// none exists or the last one expired.
func (s *PaymentSessionService) CreateSession(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.PaymentSession, error) {
	return s.ensureSession(ctx, bookingID, actor)
}

// Regenerate re-issues an expired session under the same reference. An active
// session is returned unchanged, so duplicate requests are harmless.
func (s *PaymentSessionService) Regenerate(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.PaymentSession, error) {
	return s.ensureSession(ctx, bookingID, actor)
}

func (s *PaymentSessionService) ensureSession(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.PaymentSession, error) {
	booking, err := s.loadBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if DeriveDisplayStatus(booking, now, s.Location) != StatusPendingPayment {
		return nil, NewStateConflictError("booking is not awaiting payment")
	}

	existing, err := s.findSession(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !now.After(existing.ExpiresAt) {
		return existing, nil
	}
	return s.issue(ctx, booking, now)
}

// issue writes the session with an upsert on booking_id, so concurrent calls
// converge on one row carrying the latest expiry.
func (s *PaymentSessionService) issue(ctx context.Context, b *models.Booking, now time.Time) (*models.PaymentSession, error) {
	payload, err := s.QR.Generate(ctx, QRRequest{
		Amount:    b.Pricing.TotalAmount,
		Reference: b.Payment.Reference,
		Account:   s.Account,
	})
	if err != nil {
		s.Logger.Error("qr generation failed", zap.String("booking_id", b.ID.String()), zap.Error(err))
		return nil, NewExternalDependencyError("could not generate payment QR code", err)
	}

	expiresAt := now.Add(s.TTL)
	session := models.PaymentSession{
		BookingID:       b.ID,
		Reference:       b.Payment.Reference,
		Amount:          b.Pricing.TotalAmount,
		QRPayload:       payload,
		BankID:          s.Account.BankID,
		BankAccountNo:   s.Account.AccountNo,
		BankAccountName: s.Account.AccountName,
		ExpiresAt:       expiresAt,
		Generation:      1,
	}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "booking_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"qr_payload":        payload,
			"amount":            b.Pricing.TotalAmount,
			"bank_id":           s.Account.BankID,
			"bank_account_no":   s.Account.AccountNo,
			"bank_account_name": s.Account.AccountName,
			"expires_at":        expiresAt,
			"generation":        gorm.Expr("payment_sessions.generation + 1"),
			"updated_at":        now,
		}),
	}).Create(&session).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store payment session: %w", err)
	}

	stored, err := s.findSession(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("payment session for booking %s vanished after upsert", b.ID)
	}

	s.Logger.Info("payment session issued",
		zap.String("booking_id", b.ID.String()),
		zap.Int("generation", stored.Generation),
		zap.Time("expires_at", stored.ExpiresAt),
	)
	s.Publisher.Publish(b.ID)
	return stored, nil
}

// GetStatus only reads. Expiry is evaluated against the clock on every call.
func (s *PaymentSessionService) GetStatus(ctx context.Context, bookingID uuid.UUID, actor Actor) (*SessionStatusView, error) {
	booking, err := s.loadBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	session, err := s.findSession(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if session == nil &&
		booking.Payment.Status != models.PaymentStatusCompleted &&
		booking.Status != models.BookingStatusCancelled {
		return nil, NewNotFoundError("no payment session for this booking")
	}
	return EvaluateSessionStatus(booking, session, s.now()), nil
}

// EvaluateSessionStatus is the pure status rule: completed once paid, then
// cancelled, then expired strictly after expiresAt, otherwise pending.
func EvaluateSessionStatus(b *models.Booking, session *models.PaymentSession, now time.Time) *SessionStatusView {
	view := &SessionStatusView{
		BookingID: b.ID,
		Reference: b.Payment.Reference,
		Amount:    b.Pricing.TotalAmount,
	}
	if session != nil {
		expiresAt := session.ExpiresAt
		view.ExpiresAt = &expiresAt
	}

	switch {
	case b.Payment.Status == models.PaymentStatusCompleted:
		view.Status = SessionCompleted
	case b.Status == models.BookingStatusCancelled:
		view.Status = SessionCancelled
	case session == nil || now.After(session.ExpiresAt):
		view.Status = SessionExpired
	default:
		view.Status = SessionPending
		view.SecondsRemaining = int64(session.ExpiresAt.Sub(now) / time.Second)
	}
	return view
}

func (s *PaymentSessionService) loadBooking(ctx context.Context, id uuid.UUID, actor Actor) (*models.Booking, error) {
	var b models.Booking
	if err := s.DB.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "booking not found")
	}
	if !actor.owns(&b) {
		return nil, NewNotFoundError("booking not found")
	}
	return &b, nil
}

func (s *PaymentSessionService) findSession(ctx context.Context, bookingID uuid.UUID) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := s.DB.WithContext(ctx).Where("booking_id = ?", bookingID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment session: %w", err)
	}
	return &session, nil
}
