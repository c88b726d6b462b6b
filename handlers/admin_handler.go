package handlers

import (
	"time"

	"github.com/anjiri1684/homestay_booking/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MatchTransactionRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
	Notes     string `json:"notes" validate:"max=1000"`
}

type IgnoreTransactionRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type MarkPaidRequest struct {
	TransactionRef string `json:"transaction_ref" validate:"required,max=100"`
}

type AdminHandler struct {
	Reconciliation *services.ReconciliationService
	Bookings       *services.BookingService
	Payouts        *services.PayoutService
	Logger         *zap.Logger
	Location       *time.Location
}

func NewAdminHandler(reconciliation *services.ReconciliationService, bookings *services.BookingService, payouts *services.PayoutService, logger *zap.Logger, loc *time.Location) *AdminHandler {
	return &AdminHandler{
		Reconciliation: reconciliation,
		Bookings:       bookings,
		Payouts:        payouts,
		Logger:         logger,
		Location:       loc,
	}
}

func pageFrom(c *fiber.Ctx) services.Page {
	return services.Page{Page: c.QueryInt("page", 1), Limit: c.QueryInt("limit", 20)}
}

// dateRange reads optional from/to query dates. Both are calendar days in the
// business timezone and the end day is inclusive.
func (h *AdminHandler) dateRange(c *fiber.Ctx, fromKey, toKey string) (from, to *time.Time, valid bool, err error) {
	if v := c.Query(fromKey); v != "" {
		d, perr := time.ParseInLocation(dateLayout, v, h.Location)
		if perr != nil {
			return nil, nil, false, fail(c, fiber.StatusBadRequest, string(services.KindValidation), fromKey+" must be YYYY-MM-DD", nil)
		}
		from = &d
	}
	if v := c.Query(toKey); v != "" {
		d, perr := time.ParseInLocation(dateLayout, v, h.Location)
		if perr != nil {
			return nil, nil, false, fail(c, fiber.StatusBadRequest, string(services.KindValidation), toKey+" must be YYYY-MM-DD", nil)
		}
		end := d.AddDate(0, 0, 1)
		to = &end
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, nil, false, fail(c, fiber.StatusBadRequest, string(services.KindValidation), toKey+" is before "+fromKey, nil)
	}
	return from, to, true, nil
}

func (h *AdminHandler) ListTransactions(c *fiber.Ctx) error {
	from, to, valid, err := h.dateRange(c, "from", "to")
	if !valid {
		return err
	}

	page, err := h.Reconciliation.ListUnmatched(c.UserContext(), services.TransactionFilter{
		Status: c.Query("status"),
		From:   from,
		To:     to,
		Search: c.Query("search"),
	}, pageFrom(c))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, page)
}

func (h *AdminHandler) MatchTransaction(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)

	var req MatchTransactionRequest
	if parsed, err := parseBody(c, &req); !parsed {
		return err
	}
	bookingID, _ := uuid.Parse(req.BookingID)

	result, err := h.Reconciliation.Match(c.UserContext(), services.MatchInput{
		TransactionID: c.Params("transactionId"),
		BookingID:     bookingID,
		Notes:         req.Notes,
		ActorID:       actor.ID,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, result)
}

func (h *AdminHandler) IgnoreTransaction(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)

	var req IgnoreTransactionRequest
	if len(c.Body()) > 0 {
		if parsed, err := parseBody(c, &req); !parsed {
			return err
		}
	}

	txn, err := h.Reconciliation.Ignore(c.UserContext(), c.Params("transactionId"), req.Notes, actor.ID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, txn)
}

func (h *AdminHandler) GetStatistics(c *fiber.Ctx) error {
	from, to, valid, err := h.dateRange(c, "start_date", "end_date")
	if !valid {
		return err
	}

	stats, err := h.Reconciliation.Statistics(c.UserContext(), services.DateRange{From: from, To: to})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, stats)
}

// MarkBookingPaid records a payment verified outside the bank feed.
func (h *AdminHandler) MarkBookingPaid(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)
	bookingID, valid, err := paramUUID(c, "bookingId")
	if !valid {
		return err
	}

	var req MarkPaidRequest
	if parsed, err := parseBody(c, &req); !parsed {
		return err
	}

	booking, err := h.Bookings.TransitionPaymentCompleted(c.UserContext(), bookingID, req.TransactionRef, actor)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, booking)
}

func (h *AdminHandler) ListPayouts(c *fiber.Ctx) error {
	page, err := h.Payouts.List(c.UserContext(), c.Query("status"), pageFrom(c))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, page)
}
