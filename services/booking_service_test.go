package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/anjiri1684/homestay_booking/models"
)

type bookingFixture struct {
	db        *gorm.DB
	svc       *BookingService
	clock     *clock
	payouts   *fakeSignaler
	notifier  *fakeNotifier
	publisher *fakePublisher
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	db := newTestDB(t)
	f := &bookingFixture{
		db:        db,
		clock:     newClock(testNow),
		payouts:   &fakeSignaler{},
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
	}
	f.svc = NewBookingService(db, zap.NewNop(), testRefs, testLoc, 14, 12)
	f.svc.Now = f.clock.Now
	f.svc.Payouts = f.payouts
	f.svc.Notifier = f.notifier
	f.svc.Publisher = f.publisher
	return f
}

func guestOf(b *models.Booking) Actor { return Actor{ID: b.GuestID.String()} }

var admin = Actor{ID: "admin-1", Admin: true}

func TestBookingService_Create(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	guestID := uuid.New()

	view, err := f.svc.Create(ctx, CreateBookingInput{
		GuestID:      guestID,
		HomestayID:   uuid.New(),
		GuestName:    " Lan ",
		GuestEmail:   "lan@example.com",
		CheckInDate:  time.Date(2026, time.March, 20, 0, 0, 0, 0, testLoc),
		CheckOutDate: time.Date(2026, time.March, 22, 0, 0, 0, 0, testLoc),
		Guests:       2,
		BasePrice:    600_000,
		CleaningFee:  30_000,
		ServiceFee:   30_000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if view.DisplayStatus != StatusPendingPayment {
		t.Errorf("expected pending_payment, got %s", view.DisplayStatus)
	}
	if view.Status != models.BookingStatusPending || view.Payment.Status != models.PaymentStatusPending {
		t.Errorf("expected raw pending/pending, got %s/%s", view.Status, view.Payment.Status)
	}
	if view.Pricing.HostAmount != 594_000 || view.Pricing.PlatformCommission != 66_000 {
		t.Errorf("unexpected split %+v", view.Pricing)
	}
	if view.Payment.Reference != testRefs.Derive(view.ID) {
		t.Errorf("reference %q is not derived from the booking id", view.Payment.Reference)
	}
	if view.GuestName != "Lan" {
		t.Errorf("expected trimmed guest name, got %q", view.GuestName)
	}

	wantCheckIn := time.Date(2026, time.March, 20, 14, 0, 0, 0, testLoc)
	if !view.CheckIn.Equal(wantCheckIn) {
		t.Errorf("expected check-in %s, got %s", wantCheckIn, view.CheckIn)
	}
	wantCheckOut := time.Date(2026, time.March, 22, 12, 0, 0, 0, testLoc)
	if !view.CheckOut.Equal(wantCheckOut) {
		t.Errorf("expected check-out %s, got %s", wantCheckOut, view.CheckOut)
	}

	stored := loadBooking(t, f.db, view.ID)
	if stored.Pricing != view.Pricing {
		t.Errorf("stored pricing %+v differs from returned %+v", stored.Pricing, view.Pricing)
	}
}

func TestBookingService_CreateValidation(t *testing.T) {
	f := newBookingFixture(t)
	valid := CreateBookingInput{
		GuestID:      uuid.New(),
		HomestayID:   uuid.New(),
		CheckInDate:  time.Date(2026, time.March, 20, 0, 0, 0, 0, testLoc),
		CheckOutDate: time.Date(2026, time.March, 21, 0, 0, 0, 0, testLoc),
		Guests:       1,
		BasePrice:    100_000,
	}

	tests := []struct {
		name   string
		mutate func(*CreateBookingInput)
	}{
		{"missing guest", func(in *CreateBookingInput) { in.GuestID = uuid.Nil }},
		{"missing homestay", func(in *CreateBookingInput) { in.HomestayID = uuid.Nil }},
		{"no guests", func(in *CreateBookingInput) { in.Guests = 0 }},
		{"check-out before check-in", func(in *CreateBookingInput) { in.CheckOutDate = in.CheckInDate.Add(-day) }},
		{"same day stay", func(in *CreateBookingInput) { in.CheckOutDate = in.CheckInDate }},
		{"check-in in the past", func(in *CreateBookingInput) {
			in.CheckInDate = time.Date(2026, time.March, 9, 0, 0, 0, 0, testLoc)
		}},
		{"zero base price", func(in *CreateBookingInput) { in.BasePrice = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			wantKind(t, err, KindValidation)
		})
	}
}

func TestBookingService_GetHidesOtherGuestsBookings(t *testing.T) {
	f := newBookingFixture(t)
	b := seedBooking(t, f.db, 10*day)

	if _, err := f.svc.Get(context.Background(), b.ID, guestOf(b)); err != nil {
		t.Fatalf("owner should see booking: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), b.ID, admin); err != nil {
		t.Fatalf("admin should see booking: %v", err)
	}
	_, err := f.svc.Get(context.Background(), b.ID, Actor{ID: uuid.NewString()})
	wantKind(t, err, KindNotFound)
}

func TestBookingService_ListMine(t *testing.T) {
	f := newBookingFixture(t)
	guest := uuid.New()
	seedBooking(t, f.db, 10*day, func(b *models.Booking) { b.GuestID = guest })
	seedBooking(t, f.db, 12*day, func(b *models.Booking) { b.GuestID = guest }, paid("FT-LIST"))
	seedBooking(t, f.db, 10*day)

	views, err := f.svc.ListMine(context.Background(), guest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(views))
	}
	statuses := map[DisplayStatus]int{}
	for _, v := range views {
		statuses[v.DisplayStatus]++
	}
	if statuses[StatusPendingPayment] != 1 || statuses[StatusUpcoming] != 1 {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestBookingService_RefundPreview(t *testing.T) {
	f := newBookingFixture(t)

	t.Run("refund shown when cancellable", func(t *testing.T) {
		b := seedBooking(t, f.db, 5*day, paid("FT-PREVIEW"))
		preview, err := f.svc.RefundPreview(context.Background(), b.ID, guestOf(b))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !preview.CanCancel || preview.Refund == nil {
			t.Fatalf("expected a refund preview, got %+v", preview)
		}
		if preview.Refund.RefundAmount != 500_000 || preview.Refund.Tier != RefundTierPartial {
			t.Fatalf("unexpected refund %+v", preview.Refund)
		}
	})

	t.Run("no refund math inside the lockout", func(t *testing.T) {
		b := seedBooking(t, f.db, day-time.Hour)
		preview, err := f.svc.RefundPreview(context.Background(), b.ID, guestOf(b))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if preview.CanCancel || preview.Refund != nil {
			t.Fatalf("expected no refund, got %+v", preview)
		}
	})
}

func TestBookingService_CancelPaidBookingCreatesRefund(t *testing.T) {
	f := newBookingFixture(t)
	b := seedBooking(t, f.db, 10*day, paid("FT-CANCEL"))

	view, err := f.svc.Cancel(context.Background(), b.ID, "change of plans", guestOf(b))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.DisplayStatus != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", view.DisplayStatus)
	}

	c := view.Cancellation
	if c.RefundAmount == nil || *c.RefundAmount != 950_000 {
		t.Fatalf("expected refund snapshot of 950000, got %v", c.RefundAmount)
	}
	if c.RefundTier == nil || *c.RefundTier != string(RefundTierFull) {
		t.Fatalf("expected full tier, got %v", c.RefundTier)
	}
	if c.Reason == nil || *c.Reason != "change of plans" {
		t.Fatalf("expected reason to be stored, got %v", c.Reason)
	}

	var payout models.Payout
	if err := f.db.First(&payout, "booking_id = ? AND kind = ?", b.ID, models.PayoutKindGuestRefund).Error; err != nil {
		t.Fatalf("expected refund payout: %v", err)
	}
	if payout.Amount != 950_000 || payout.Status != models.PayoutStatusPending {
		t.Fatalf("unexpected payout %+v", payout)
	}
	if len(f.payouts.ids) != 1 || f.payouts.ids[0] != payout.ID {
		t.Fatalf("expected payout %s to be signalled, got %v", payout.ID, f.payouts.ids)
	}
	if len(f.notifier.cancelled) != 1 || len(f.publisher.ids) != 1 {
		t.Fatalf("expected one notification and one publish")
	}
}

func TestBookingService_CancelUnpaidBookingHasNoPayout(t *testing.T) {
	f := newBookingFixture(t)
	b := seedBooking(t, f.db, 5*day)

	if _, err := f.svc.Cancel(context.Background(), b.ID, "", guestOf(b)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int64
	f.db.Model(&models.Payout{}).Where("booking_id = ?", b.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no payout for an unpaid booking, got %d", count)
	}
	if len(f.payouts.ids) != 0 {
		t.Fatalf("expected no payout signal")
	}
}

func TestBookingService_CancelRejections(t *testing.T) {
	t.Run("inside the 24 hour lockout", func(t *testing.T) {
		f := newBookingFixture(t)
		b := seedBooking(t, f.db, day-time.Hour, paid("FT-LOCK"))

		_, err := f.svc.Cancel(context.Background(), b.ID, "", guestOf(b))
		wantKind(t, err, KindPolicyViolation)

		stored := loadBooking(t, f.db, b.ID)
		if stored.Status != models.BookingStatusConfirmed || stored.Cancellation.RefundAmount != nil {
			t.Fatalf("booking must be untouched, got %+v", stored)
		}
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := newBookingFixture(t)
		b := seedBooking(t, f.db, 10*day)
		if _, err := f.svc.Cancel(context.Background(), b.ID, "", guestOf(b)); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		_, err := f.svc.Cancel(context.Background(), b.ID, "", guestOf(b))
		wantKind(t, err, KindStateConflict)
	})

	t.Run("already completed", func(t *testing.T) {
		f := newBookingFixture(t)
		b := seedBooking(t, f.db, 10*day, func(b *models.Booking) { b.Status = models.BookingStatusCompleted })
		_, err := f.svc.Cancel(context.Background(), b.ID, "", guestOf(b))
		wantKind(t, err, KindStateConflict)
	})

	t.Run("someone else's booking", func(t *testing.T) {
		f := newBookingFixture(t)
		b := seedBooking(t, f.db, 10*day)
		_, err := f.svc.Cancel(context.Background(), b.ID, "", Actor{ID: uuid.NewString()})
		wantKind(t, err, KindNotFound)
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newBookingFixture(t)
		_, err := f.svc.Cancel(context.Background(), uuid.New(), "", admin)
		wantKind(t, err, KindNotFound)
	})
}

func TestBookingService_TransitionPaymentCompleted(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		f := newBookingFixture(t)
		b := seedBooking(t, f.db, 10*day)

		first, err := f.svc.TransitionPaymentCompleted(context.Background(), b.ID, "FT-MANUAL", admin)
		if err != nil {
			t.Fatalf("first call: %v", err)
		}
		if first.DisplayStatus != StatusUpcoming || first.Status != models.BookingStatusConfirmed {
			t.Fatalf("expected confirmed upcoming booking, got %s/%s", first.Status, first.DisplayStatus)
		}
		if first.Payment.VerificationMethod == nil || *first.Payment.VerificationMethod != models.VerificationAdminMarked {
			t.Fatalf("expected admin_marked verification, got %v", first.Payment.VerificationMethod)
		}

		second, err := f.svc.TransitionPaymentCompleted(context.Background(), b.ID, "FT-MANUAL", admin)
		if err != nil {
			t.Fatalf("second call: %v", err)
		}
		if !second.Payment.CompletedAt.Equal(*first.Payment.CompletedAt) {
			t.Fatalf("second call changed the payment")
		}
		if len(f.notifier.confirmed) != 1 {
			t.Fatalf("expected exactly one confirmation, got %d", len(f.notifier.confirmed))
		}
	})

	t.Run("cancelled booking conflicts", func(t *testing.T) {
		f := newBookingFixture(t)
		b := seedBooking(t, f.db, 10*day, func(b *models.Booking) { b.Status = models.BookingStatusCancelled })
		_, err := f.svc.TransitionPaymentCompleted(context.Background(), b.ID, "FT-LATE", admin)
		wantKind(t, err, KindStateConflict)
	})

	t.Run("reference already used by another booking", func(t *testing.T) {
		f := newBookingFixture(t)
		seedBooking(t, f.db, 10*day, paid("FT-TAKEN"))
		b := seedBooking(t, f.db, 10*day)
		_, err := f.svc.TransitionPaymentCompleted(context.Background(), b.ID, "FT-TAKEN", admin)
		wantKind(t, err, KindStateConflict)
	})

	t.Run("requires a reference", func(t *testing.T) {
		f := newBookingFixture(t)
		b := seedBooking(t, f.db, 10*day)
		_, err := f.svc.TransitionPaymentCompleted(context.Background(), b.ID, "  ", admin)
		wantKind(t, err, KindValidation)
	})
}
