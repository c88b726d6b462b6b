package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anjiri1684/homestay_booking/models"
)

type fakeGateway struct {
	requests     []TransferRequest
	TransferFunc func(ctx context.Context, req TransferRequest) (*TransferReceipt, error)
}

func (f *fakeGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	f.requests = append(f.requests, req)
	if f.TransferFunc != nil {
		return f.TransferFunc(ctx, req)
	}
	return &TransferReceipt{ProviderRef: "PO-" + req.PayoutID.String()[:8], Raw: []byte(`{"status":"ok"}`)}, nil
}

func newPayoutService(t *testing.T) (*PayoutService, *fakeGateway, *clock) {
	t.Helper()
	db := newTestDB(t)
	gw := &fakeGateway{}
	c := newClock(testNow)
	svc := NewPayoutService(db, zap.NewNop(), gw, 3)
	svc.Now = c.Now
	return svc, gw, c
}

func seedPayout(t *testing.T, svc *PayoutService, b *models.Booking, kind string, amount int64) *models.Payout {
	t.Helper()
	p := &models.Payout{BookingID: b.ID, Kind: kind, Amount: amount, Status: models.PayoutStatusPending}
	if err := svc.DB.Create(p).Error; err != nil {
		t.Fatalf("seed payout: %v", err)
	}
	return p
}

func loadPayout(t *testing.T, svc *PayoutService, id uuid.UUID) models.Payout {
	t.Helper()
	var p models.Payout
	if err := svc.DB.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("load payout: %v", err)
	}
	return p
}

func TestPayoutService_RefundCompletionMarksTransactionRefunded(t *testing.T) {
	svc, gw, _ := newPayoutService(t)
	b := seedBooking(t, svc.DB, 10*day, paid("FT-PAID"), func(b *models.Booking) {
		b.Status = models.BookingStatusCancelled
	})
	seedTransaction(t, svc.DB, "FT-PAID", b.Pricing.TotalAmount, "")
	svc.DB.Model(&models.BankTransaction{}).Where("transaction_id = ?", "FT-PAID").Updates(map[string]interface{}{
		"status":             models.TransactionStatusMatched,
		"matched_booking_id": b.ID,
	})
	p := seedPayout(t, svc, b, models.PayoutKindGuestRefund, 950_000)

	if err := svc.Dispatch(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := loadPayout(t, svc, p.ID)
	if got.Status != models.PayoutStatusCompleted || got.Attempts != 1 || got.CompletedAt == nil {
		t.Fatalf("unexpected payout %+v", got)
	}
	if got.ProviderRef == nil || *got.ProviderRef == "" {
		t.Fatalf("expected provider reference to be stored")
	}
	if len(gw.requests) != 1 || gw.requests[0].Amount != 950_000 || gw.requests[0].Reference != b.Payment.Reference {
		t.Fatalf("unexpected transfer requests %+v", gw.requests)
	}

	if txn := loadTransaction(t, svc.DB, "FT-PAID"); txn.Status != models.TransactionStatusRefunded {
		t.Fatalf("expected refunded transaction, got %s", txn.Status)
	}
	var audits int64
	svc.DB.Model(&models.MatchAudit{}).Where("transaction_id = ? AND action = ?", "FT-PAID", models.AuditActionRefunded).Count(&audits)
	if audits != 1 {
		t.Fatalf("expected a refund audit row, got %d", audits)
	}

	if err := svc.Dispatch(context.Background(), p.ID); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if len(gw.requests) != 1 {
		t.Fatalf("completed payout must not be sent twice")
	}
}

func TestPayoutService_FailureIsRetriedUntilMaxAttempts(t *testing.T) {
	svc, gw, _ := newPayoutService(t)
	gw.TransferFunc = func(context.Context, TransferRequest) (*TransferReceipt, error) {
		return nil, errors.New("provider unavailable")
	}
	b := seedBooking(t, svc.DB, 10*day, paid("FT-RETRY"))
	p := seedPayout(t, svc, b, models.PayoutKindGuestRefund, 500_000)

	err := svc.Dispatch(context.Background(), p.ID)
	wantKind(t, err, KindExternalDependency)

	got := loadPayout(t, svc, p.ID)
	if got.Status != models.PayoutStatusFailed || got.LastError == nil || *got.LastError != "provider unavailable" {
		t.Fatalf("unexpected payout after failure %+v", got)
	}

	for i := 0; i < 5; i++ {
		svc.DispatchDue(context.Background())
	}
	if len(gw.requests) != 3 {
		t.Fatalf("expected 3 attempts in total, got %d", len(gw.requests))
	}
	if got := loadPayout(t, svc, p.ID); got.Attempts != 3 {
		t.Fatalf("expected attempts to stop at 3, got %d", got.Attempts)
	}
}

func TestPayoutService_ScheduleHostPayouts(t *testing.T) {
	svc, gw, _ := newPayoutService(t)
	finished := seedBooking(t, svc.DB, -3*day, paid("FT-STAY"))
	seedBooking(t, svc.DB, 5*day, paid("FT-FUTURE"))
	seedBooking(t, svc.DB, -3*day)
	seedBooking(t, svc.DB, -3*day, paid("FT-GONE"), func(b *models.Booking) { b.Status = models.BookingStatusCancelled })

	created, err := svc.ScheduleHostPayouts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected one host payout, got %d", created)
	}
	again, _ := svc.ScheduleHostPayouts(context.Background())
	if again != 0 {
		t.Fatalf("scheduling twice must not duplicate payouts, got %d", again)
	}

	var p models.Payout
	if err := svc.DB.First(&p, "booking_id = ? AND kind = ?", finished.ID, models.PayoutKindHost).Error; err != nil {
		t.Fatalf("expected host payout: %v", err)
	}
	if p.Amount != finished.Pricing.HostAmount {
		t.Fatalf("expected host amount %d, got %d", finished.Pricing.HostAmount, p.Amount)
	}

	if _, err := svc.DispatchDue(context.Background()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(gw.requests) != 1 || gw.requests[0].Kind != models.PayoutKindHost {
		t.Fatalf("unexpected transfers %+v", gw.requests)
	}
	stored := loadBooking(t, svc.DB, finished.ID)
	if stored.HostPayout.Status != models.PayoutStatusCompleted {
		t.Fatalf("expected booking host payout to be completed, got %s", stored.HostPayout.Status)
	}
}

func TestPayoutService_StaleProcessingIsReclaimed(t *testing.T) {
	svc, gw, c := newPayoutService(t)
	b := seedBooking(t, svc.DB, 10*day, paid("FT-STALE"))
	p := seedPayout(t, svc, b, models.PayoutKindGuestRefund, 100_000)
	svc.DB.Model(&models.Payout{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"status":     models.PayoutStatusProcessing,
		"attempts":   1,
		"updated_at": testNow,
	})

	if err := svc.Dispatch(context.Background(), p.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(gw.requests) != 0 {
		t.Fatalf("fresh processing payout must not be claimed again")
	}

	c.Advance(svc.StaleAfter + time.Minute)
	if err := svc.Dispatch(context.Background(), p.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(gw.requests) != 1 {
		t.Fatalf("stale payout should be retried")
	}
}

func TestPayoutService_List(t *testing.T) {
	svc, _, _ := newPayoutService(t)
	b := seedBooking(t, svc.DB, 10*day)
	seedPayout(t, svc, b, models.PayoutKindGuestRefund, 1)
	seedPayout(t, svc, b, models.PayoutKindHost, 2)
	svc.DB.Model(&models.Payout{}).Where("kind = ?", models.PayoutKindHost).Update("status", models.PayoutStatusFailed)

	all, err := svc.List(context.Background(), "", Page{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("expected 2 payouts, got %d", all.Total)
	}
	failed, _ := svc.List(context.Background(), models.PayoutStatusFailed, Page{})
	if failed.Total != 1 || failed.Payouts[0].Kind != models.PayoutKindHost {
		t.Fatalf("unexpected failed payouts %+v", failed.Payouts)
	}
}
