package services

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anjiri1684/homestay_booking/database"
	"github.com/anjiri1684/homestay_booking/models"
	"github.com/anjiri1684/homestay_booking/utils"
)

var (
	testLoc = time.FixedZone("ICT", 7*60*60)
	// 10:00 local time.
	testNow = time.Date(2026, time.March, 10, 3, 0, 0, 0, time.UTC)
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(now time.Time) *clock { return &clock{now: now} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testRefs = utils.NewReferenceGenerator("test-secret")

// seedBooking stores a booking awaiting payment whose check-in is the given
// duration after testNow.
func seedBooking(t *testing.T, db *gorm.DB, untilCheckIn time.Duration, mutate ...func(*models.Booking)) *models.Booking {
	t.Helper()
	pricing, err := SplitPricing(900_000, 50_000, 50_000)
	if err != nil {
		t.Fatalf("split pricing: %v", err)
	}
	id := uuid.New()
	checkIn := testNow.Add(untilCheckIn)
	b := &models.Booking{
		ID:         id,
		GuestID:    uuid.New(),
		HomestayID: uuid.New(),
		GuestName:  "Test Guest",
		GuestEmail: "guest@example.com",
		CheckIn:    checkIn,
		CheckOut:   checkIn.Add(46 * time.Hour),
		Guests:     2,
		Status:     models.BookingStatusPending,
		Pricing:    pricing,
		Payment: models.BookingPayment{
			Status:    models.PaymentStatusPending,
			Reference: testRefs.Derive(id),
		},
		HostPayout: models.BookingHostPayout{Status: models.PayoutStatusPending},
	}
	for _, m := range mutate {
		m(b)
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return b
}

func paid(txRef string) func(*models.Booking) {
	return func(b *models.Booking) {
		b.Status = models.BookingStatusConfirmed
		b.Payment.Status = models.PaymentStatusCompleted
		b.Payment.TransactionID = &txRef
		completed := testNow.Add(-time.Hour)
		b.Payment.CompletedAt = &completed
	}
}

func seedTransaction(t *testing.T, db *gorm.DB, txID string, amount int64, content string) *models.BankTransaction {
	t.Helper()
	txn := &models.BankTransaction{
		TransactionID:   txID,
		Amount:          amount,
		Content:         content,
		BankName:        "VCB",
		AccountNumber:   "0011223344",
		TransactionDate: testNow.Add(-time.Minute),
		Status:          models.TransactionStatusUnmatched,
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return txn
}

func loadBooking(t *testing.T, db *gorm.DB, id uuid.UUID) models.Booking {
	t.Helper()
	var b models.Booking
	if err := db.First(&b, "id = ?", id).Error; err != nil {
		t.Fatalf("load booking: %v", err)
	}
	return b
}

func loadTransaction(t *testing.T, db *gorm.DB, txID string) models.BankTransaction {
	t.Helper()
	var txn models.BankTransaction
	if err := db.First(&txn, "transaction_id = ?", txID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	return txn
}

func wantKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %q (%v)", kind, got, err)
	}
}

type fakeSignaler struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *fakeSignaler) Signal(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

type fakeNotifier struct {
	mu        sync.Mutex
	confirmed []uuid.UUID
	cancelled []uuid.UUID
}

func (f *fakeNotifier) PaymentConfirmed(b *models.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, b.ID)
}

func (f *fakeNotifier) BookingCancelled(b *models.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, b.ID)
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *fakePublisher) Publish(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}
