package handlers

import (
	"time"

	"github.com/anjiri1684/homestay_booking/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type CreateBookingRequest struct {
	HomestayID   string `json:"homestay_id" validate:"required,uuid"`
	GuestName    string `json:"guest_name" validate:"required,max=255"`
	GuestEmail   string `json:"guest_email" validate:"required,email"`
	CheckInDate  string `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOutDate string `json:"check_out_date" validate:"required,datetime=2006-01-02"`
	Guests       int    `json:"guests" validate:"required,min=1"`
	BasePrice    int64  `json:"base_price" validate:"required,gt=0,lte=1000000000000"`
	CleaningFee  int64  `json:"cleaning_fee" validate:"min=0,lte=1000000000000"`
	ServiceFee   int64  `json:"service_fee" validate:"min=0,lte=1000000000000"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type BookingHandler struct {
	Bookings *services.BookingService
	Logger   *zap.Logger
	Location *time.Location
}

func NewBookingHandler(bookings *services.BookingService, logger *zap.Logger, loc *time.Location) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Logger: logger, Location: loc}
}

func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	_, guestID := actorFrom(c)

	var req CreateBookingRequest
	if parsed, err := parseBody(c, &req); !parsed {
		return err
	}
	homestayID, _ := uuid.Parse(req.HomestayID)
	checkIn, _ := time.ParseInLocation(dateLayout, req.CheckInDate, h.Location)
	checkOut, _ := time.ParseInLocation(dateLayout, req.CheckOutDate, h.Location)

	booking, err := h.Bookings.Create(c.UserContext(), services.CreateBookingInput{
		GuestID:      guestID,
		HomestayID:   homestayID,
		GuestName:    req.GuestName,
		GuestEmail:   req.GuestEmail,
		CheckInDate:  checkIn,
		CheckOutDate: checkOut,
		Guests:       req.Guests,
		BasePrice:    req.BasePrice,
		CleaningFee:  req.CleaningFee,
		ServiceFee:   req.ServiceFee,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusCreated, booking)
}

func (h *BookingHandler) GetMyBookings(c *fiber.Ctx) error {
	_, guestID := actorFrom(c)

	bookings, err := h.Bookings.ListMine(c.UserContext(), guestID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, bookings)
}

func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)
	bookingID, valid, err := paramUUID(c, "bookingId")
	if !valid {
		return err
	}

	booking, err := h.Bookings.Get(c.UserContext(), bookingID, actor)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, booking)
}

func (h *BookingHandler) GetRefundPreview(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)
	bookingID, valid, err := paramUUID(c, "bookingId")
	if !valid {
		return err
	}

	preview, err := h.Bookings.RefundPreview(c.UserContext(), bookingID, actor)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, preview)
}

// CancelBooking recomputes the refund server-side; any figure the client
// previewed is not trusted.
func (h *BookingHandler) CancelBooking(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)
	bookingID, valid, err := paramUUID(c, "bookingId")
	if !valid {
		return err
	}

	var req CancelBookingRequest
	if len(c.Body()) > 0 {
		if parsed, err := parseBody(c, &req); !parsed {
			return err
		}
	}

	booking, err := h.Bookings.Cancel(c.UserContext(), bookingID, req.Reason, actor)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, booking)
}
