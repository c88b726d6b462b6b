package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anjiri1684/homestay_booking/models"
	"github.com/anjiri1684/homestay_booking/utils"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type TransactionFilter struct {
	// Status defaults to unmatched.
	Status string
	From   *time.Time
	To     *time.Time
	Search string
}

type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p
}

func (p Page) offset() int { return (p.Page - 1) * p.Limit }

type TransactionPage struct {
	Transactions []models.BankTransaction `json:"transactions"`
	Total        int64                    `json:"total"`
	Page         int                      `json:"page"`
	Limit        int                      `json:"limit"`
}

type MatchInput struct {
	TransactionID string
	BookingID     uuid.UUID
	Notes         string
	ActorID       string
}

type MatchResult struct {
	Transaction      models.BankTransaction `json:"transaction"`
	Booking          models.Booking         `json:"booking"`
	Flag             string                 `json:"flag"`
	AmountDifference int64                  `json:"amount_difference"`
	Flagged          bool                   `json:"flagged"`
}

// IngestInput is one bank statement line as delivered by the bank feed.
type IngestInput struct {
	TransactionID   string
	Amount          int64
	Content         string
	BankName        string
	AccountNumber   string
	TransactionDate time.Time
}

type IngestResult struct {
	Transaction models.BankTransaction `json:"transaction"`
	Duplicate   bool                   `json:"duplicate"`
	AutoMatched bool                   `json:"auto_matched"`
}

type DateRange struct {
	From *time.Time
	To   *time.Time
}

type Statistics struct {
	TotalRevenue            int64 `json:"total_revenue"`
	TotalHostPayouts        int64 `json:"total_host_payouts"`
	TotalPlatformCommission int64 `json:"total_platform_commission"`
	TotalBookings           int64 `json:"total_bookings"`
	PendingPayments         int64 `json:"pending_payments"`
	CancelledBookings       int64 `json:"cancelled_bookings"`
	TotalRefunded           int64 `json:"total_refunded"`
	UnmatchedTransactions   int64 `json:"unmatched_transactions"`
}

type ReconciliationService struct {
	DB        *gorm.DB
	Logger    *zap.Logger
	Location  *time.Location
	Tolerance int64
	// AutoMatchGrace is how long after session expiry a transfer carrying the
	// booking reference is still matched without an admin.
	AutoMatchGrace time.Duration

	Notifier  Notifier
	Publisher PaymentStatusPublisher
	Now       func() time.Time
}

func NewReconciliationService(db *gorm.DB, logger *zap.Logger, loc *time.Location, tolerance int64, grace time.Duration) *ReconciliationService {
	return &ReconciliationService{
		DB:             db,
		Logger:         logger,
		Location:       loc,
		Tolerance:      tolerance,
		AutoMatchGrace: grace,
		Notifier:       nopNotifier{},
		Publisher:      nopPublisher{},
	}
}

func (s *ReconciliationService) now() time.Time { return nowOrDefault(s.Now) }

// ClassifyAmount compares the received amount with the booking total.
func ClassifyAmount(received, expected, tolerance int64) (flag string, diff int64) {
	diff = received - expected
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	switch {
	case diff == 0:
		return models.MatchFlagExact, 0
	case abs <= tolerance:
		return models.MatchFlagWithinTolerance, diff
	default:
		return models.MatchFlagOutOfTolerance, diff
	}
}

// ListUnmatched pages through bank transactions, newest first.
func (s *ReconciliationService) ListUnmatched(ctx context.Context, f TransactionFilter, p Page) (*TransactionPage, error) {
	p = p.normalize()
	status := f.Status
	if status == "" {
		status = models.TransactionStatusUnmatched
	}

	query := func() *gorm.DB {
		q := s.DB.WithContext(ctx).Model(&models.BankTransaction{})
		if status != "all" {
			q = q.Where("status = ?", status)
		}
		if f.From != nil {
			q = q.Where("transaction_date >= ?", f.From.UTC())
		}
		if f.To != nil {
			q = q.Where("transaction_date < ?", f.To.UTC())
		}
		if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
			like := "%" + term + "%"
			q = q.Where("LOWER(content) LIKE ? OR LOWER(transaction_id) LIKE ? OR LOWER(bank_name) LIKE ?", like, like, like)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var txns []models.BankTransaction
	if err := query().Order("transaction_date DESC").Order("created_at DESC").
		Offset(p.offset()).Limit(p.Limit).
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &TransactionPage{Transactions: txns, Total: total, Page: p.Page, Limit: p.Limit}, nil
}

// Match binds an unmatched transaction to a booking awaiting payment. The
// transaction, the booking and the audit row commit together; a caller that
// loses a race changes nothing and gets a StateConflict.
func (s *ReconciliationService) Match(ctx context.Context, in MatchInput) (*MatchResult, error) {
	if strings.TrimSpace(in.TransactionID) == "" || in.BookingID == uuid.Nil {
		return nil, NewValidationError("transaction and booking are required")
	}
	if in.ActorID == "" {
		return nil, NewValidationError("actor is required")
	}
	return s.match(ctx, in, models.VerificationManualMatch)
}

func (s *ReconciliationService) match(ctx context.Context, in MatchInput, method string) (*MatchResult, error) {
	now := s.now()
	var result MatchResult

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn models.BankTransaction
		if err := lockForUpdate(tx).First(&txn, "transaction_id = ?", in.TransactionID).Error; err != nil {
			return notFoundOr(err, "transaction not found")
		}
		if txn.Status != models.TransactionStatusUnmatched {
			return NewStateConflictError(fmt.Sprintf("transaction is already %s", txn.Status))
		}

		var booking models.Booking
		if err := lockForUpdate(tx).First(&booking, "id = ?", in.BookingID).Error; err != nil {
			return notFoundOr(err, "booking not found")
		}
		if DeriveDisplayStatus(&booking, now, s.Location) != StatusPendingPayment {
			return NewStateConflictError("booking is not awaiting payment")
		}

		flag, diff := ClassifyAmount(txn.Amount, booking.Pricing.TotalAmount, s.Tolerance)
		flagged := flag != models.MatchFlagExact

		updates := map[string]interface{}{
			"status":             models.TransactionStatusMatched,
			"matched_booking_id": booking.ID,
			"matched_by":         in.ActorID,
			"matched_at":         now,
			"amount_difference":  diff,
			"flagged":            flagged,
		}
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			updates["notes"] = notes
		}
		res := tx.Model(&models.BankTransaction{}).
			Where("id = ? AND status = ?", txn.ID, models.TransactionStatusUnmatched).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewStateConflictError("transaction was matched by another request")
		}

		err := completePayment(tx, booking.ID, paymentCompletion{
			TransactionRef:   txn.TransactionID,
			Method:           method,
			VerifiedBy:       in.ActorID,
			AmountDifference: diff,
			Flagged:          flagged,
		}, now)
		if err != nil {
			return err
		}

		audit := models.MatchAudit{
			TransactionID:    txn.TransactionID,
			BookingID:        &booking.ID,
			Action:           models.AuditActionMatched,
			ActorID:          in.ActorID,
			ExpectedAmount:   booking.Pricing.TotalAmount,
			ReceivedAmount:   txn.Amount,
			AmountDifference: diff,
			Flag:             flag,
			Details: auditDetails(map[string]interface{}{
				"notes":     in.Notes,
				"method":    method,
				"reference": booking.Payment.Reference,
				"content":   txn.Content,
			}),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("failed to write match audit: %w", err)
		}

		if err := tx.First(&result.Transaction, "id = ?", txn.ID).Error; err != nil {
			return err
		}
		if err := tx.First(&result.Booking, "id = ?", booking.ID).Error; err != nil {
			return err
		}
		result.Flag = flag
		result.AmountDifference = diff
		result.Flagged = flagged
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("transaction_id", in.TransactionID),
		zap.String("booking_id", in.BookingID.String()),
		zap.String("actor", in.ActorID),
		zap.String("flag", result.Flag),
		zap.Int64("amount_difference", result.AmountDifference),
	}
	if result.Flagged {
		s.Logger.Warn("transaction matched with amount difference", fields...)
	} else {
		s.Logger.Info("transaction matched", fields...)
	}

	s.Notifier.PaymentConfirmed(&result.Booking)
	s.Publisher.Publish(result.Booking.ID)
	return &result, nil
}

// Ignore takes an unmatched transaction out of the queue for good.
func (s *ReconciliationService) Ignore(ctx context.Context, transactionID, notes, actorID string) (*models.BankTransaction, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, NewValidationError("transaction is required")
	}

	now := s.now()
	var txn models.BankTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&txn, "transaction_id = ?", transactionID).Error; err != nil {
			return notFoundOr(err, "transaction not found")
		}
		if !models.CanTransitionTransaction(txn.Status, models.TransactionStatusIgnored) {
			return NewStateConflictError(fmt.Sprintf("transaction is already %s", txn.Status))
		}

		updates := map[string]interface{}{
			"status":     models.TransactionStatusIgnored,
			"matched_by": actorID,
			"matched_at": now,
		}
		if n := strings.TrimSpace(notes); n != "" {
			updates["notes"] = n
		}
		res := tx.Model(&models.BankTransaction{}).
			Where("id = ? AND status = ?", txn.ID, models.TransactionStatusUnmatched).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewStateConflictError("transaction was changed by another request")
		}

		audit := models.MatchAudit{
			TransactionID:  txn.TransactionID,
			Action:         models.AuditActionIgnored,
			ActorID:        actorID,
			ReceivedAmount: txn.Amount,
			Details:        auditDetails(map[string]interface{}{"notes": notes}),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		return tx.First(&txn, "id = ?", txn.ID).Error
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("transaction ignored", zap.String("transaction_id", transactionID), zap.String("actor", actorID))
	return &txn, nil
}

// Ingest records a bank statement line. A line whose content carries the
// reference of a booking still awaiting payment, with an amount inside the
// tolerance and a date no later than the session expiry plus the grace
// window, is matched right away. Everything else waits for an admin.
func (s *ReconciliationService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	in.TransactionID = strings.TrimSpace(in.TransactionID)
	if in.TransactionID == "" {
		return nil, NewValidationError("transaction id is required")
	}
	if in.Amount <= 0 {
		return nil, NewValidationError("amount must be positive")
	}
	if in.TransactionDate.IsZero() {
		in.TransactionDate = s.now()
	}

	txn := models.BankTransaction{
		TransactionID:   in.TransactionID,
		Amount:          in.Amount,
		Content:         in.Content,
		BankName:        in.BankName,
		AccountNumber:   in.AccountNumber,
		TransactionDate: in.TransactionDate.UTC(),
		Status:          models.TransactionStatusUnmatched,
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_id"}}, DoNothing: true}).
		Create(&txn)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var existing models.BankTransaction
		if err := s.DB.WithContext(ctx).First(&existing, "transaction_id = ?", in.TransactionID).Error; err != nil {
			return nil, fmt.Errorf("failed to load duplicate transaction: %w", err)
		}
		return &IngestResult{Transaction: existing, Duplicate: true}, nil
	}

	result := &IngestResult{Transaction: txn}
	bookingID, ok := s.autoMatchCandidate(ctx, &txn)
	if !ok {
		s.Logger.Info("transaction queued for reconciliation", zap.String("transaction_id", txn.TransactionID))
		return result, nil
	}

	matched, err := s.match(ctx, MatchInput{
		TransactionID: txn.TransactionID,
		BookingID:     bookingID,
		Notes:         "matched by transfer reference",
		ActorID:       SystemActor,
	}, models.VerificationBankMatch)
	if err != nil {
		if KindOf(err) == "" {
			return nil, err
		}
		s.Logger.Info("auto-match skipped", zap.String("transaction_id", txn.TransactionID), zap.Error(err))
		return result, nil
	}

	result.Transaction = matched.Transaction
	result.AutoMatched = true
	return result, nil
}

func (s *ReconciliationService) autoMatchCandidate(ctx context.Context, txn *models.BankTransaction) (uuid.UUID, bool) {
	refs := utils.ExtractReferences(txn.Content)
	if len(refs) == 0 {
		return uuid.Nil, false
	}

	var booking models.Booking
	if err := s.DB.WithContext(ctx).First(&booking, "payment_reference IN ?", refs).Error; err != nil {
		return uuid.Nil, false
	}
	if DeriveDisplayStatus(&booking, s.now(), s.Location) != StatusPendingPayment {
		return uuid.Nil, false
	}

	var session models.PaymentSession
	if err := s.DB.WithContext(ctx).First(&session, "booking_id = ?", booking.ID).Error; err != nil {
		return uuid.Nil, false
	}
	if txn.TransactionDate.After(session.ExpiresAt.Add(s.AutoMatchGrace)) {
		return uuid.Nil, false
	}
	if flag, _ := ClassifyAmount(txn.Amount, booking.Pricing.TotalAmount, s.Tolerance); flag == models.MatchFlagOutOfTolerance {
		return uuid.Nil, false
	}
	return booking.ID, true
}

// Statistics aggregates stored pricing of bookings created in the range.
// Revenue figures count paid bookings that were not cancelled.
func (s *ReconciliationService) Statistics(ctx context.Context, r DateRange) (*Statistics, error) {
	bookings := func() *gorm.DB {
		q := s.DB.WithContext(ctx).Model(&models.Booking{})
		if r.From != nil {
			q = q.Where("created_at >= ?", r.From.UTC())
		}
		if r.To != nil {
			q = q.Where("created_at < ?", r.To.UTC())
		}
		return q
	}

	var stats Statistics
	var revenue struct {
		Revenue    int64
		Host       int64
		Commission int64
		Bookings   int64
	}
	if err := bookings().
		Select("COALESCE(SUM(pricing_total_amount), 0) AS revenue, "+
			"COALESCE(SUM(pricing_host_amount), 0) AS host, "+
			"COALESCE(SUM(pricing_platform_commission), 0) AS commission, "+
			"COUNT(*) AS bookings").
		Where("payment_status = ? AND status <> ?", models.PaymentStatusCompleted, models.BookingStatusCancelled).
		Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate revenue: %w", err)
	}
	stats.TotalRevenue = revenue.Revenue
	stats.TotalHostPayouts = revenue.Host
	stats.TotalPlatformCommission = revenue.Commission
	stats.TotalBookings = revenue.Bookings

	if err := bookings().
		Where("payment_status = ? AND status <> ?", models.PaymentStatusPending, models.BookingStatusCancelled).
		Count(&stats.PendingPayments).Error; err != nil {
		return nil, err
	}
	if err := bookings().
		Where("status = ?", models.BookingStatusCancelled).
		Count(&stats.CancelledBookings).Error; err != nil {
		return nil, err
	}
	if err := bookings().
		Select("COALESCE(SUM(cancellation_refund_amount), 0)").
		Where("status = ? AND payment_status = ?", models.BookingStatusCancelled, models.PaymentStatusCompleted).
		Scan(&stats.TotalRefunded).Error; err != nil {
		return nil, err
	}

	txns := s.DB.WithContext(ctx).Model(&models.BankTransaction{}).Where("status = ?", models.TransactionStatusUnmatched)
	if r.From != nil {
		txns = txns.Where("transaction_date >= ?", r.From.UTC())
	}
	if r.To != nil {
		txns = txns.Where("transaction_date < ?", r.To.UTC())
	}
	if err := txns.Count(&stats.UnmatchedTransactions).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}

// markTransactionRefunded moves the transaction that paid a booking to
// refunded once the guest refund went out.
func markTransactionRefunded(tx *gorm.DB, bookingID uuid.UUID, actorID string, now time.Time) error {
	var txn models.BankTransaction
	err := tx.First(&txn, "matched_booking_id = ? AND status = ?", bookingID, models.TransactionStatusMatched).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	res := tx.Model(&models.BankTransaction{}).
		Where("id = ? AND status = ?", txn.ID, models.TransactionStatusMatched).
		Update("status", models.TransactionStatusRefunded)
	if res.Error != nil || res.RowsAffected == 0 {
		return res.Error
	}

	return tx.Create(&models.MatchAudit{
		TransactionID:  txn.TransactionID,
		BookingID:      &bookingID,
		Action:         models.AuditActionRefunded,
		ActorID:        actorID,
		ReceivedAmount: txn.Amount,
		Details:        auditDetails(map[string]interface{}{"refunded_at": now}),
	}).Error
}

func auditDetails(v map[string]interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
