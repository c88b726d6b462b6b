package handlers

import (
	"crypto/subtle"
	"time"

	"github.com/anjiri1684/homestay_booking/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const webhookSecretHeader = "X-Webhook-Secret"

type BankWebhookRequest struct {
	TransactionID   string `json:"transaction_id" validate:"required,max=100"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	Content         string `json:"content" validate:"max=1000"`
	BankName        string `json:"bank_name" validate:"max=100"`
	AccountNumber   string `json:"account_number" validate:"max=50"`
	TransactionDate string `json:"transaction_date" validate:"required"`
}

type PaymentHandler struct {
	Sessions       *services.PaymentSessionService
	Reconciliation *services.ReconciliationService
	Logger         *zap.Logger
	WebhookSecret  string
}

func NewPaymentHandler(sessions *services.PaymentSessionService, reconciliation *services.ReconciliationService, logger *zap.Logger, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		Sessions:       sessions,
		Reconciliation: reconciliation,
		Logger:         logger,
		WebhookSecret:  webhookSecret,
	}
}

func (h *PaymentHandler) CreateSession(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)
	bookingID, valid, err := paramUUID(c, "bookingId")
	if !valid {
		return err
	}

	session, err := h.Sessions.CreateSession(c.UserContext(), bookingID, actor)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusCreated, session)
}

func (h *PaymentHandler) RegenerateSession(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)
	bookingID, valid, err := paramUUID(c, "bookingId")
	if !valid {
		return err
	}

	session, err := h.Sessions.Regenerate(c.UserContext(), bookingID, actor)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, session)
}

func (h *PaymentHandler) GetPaymentStatus(c *fiber.Ctx) error {
	actor, _ := actorFrom(c)
	bookingID, valid, err := paramUUID(c, "bookingId")
	if !valid {
		return err
	}

	status, err := h.Sessions.GetStatus(c.UserContext(), bookingID, actor)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return respond(c, fiber.StatusOK, status)
}

// BankWebhook records one credit line from the bank feed. Replays of the same
// transaction id are acknowledged with 200 and change nothing.
func (h *PaymentHandler) BankWebhook(c *fiber.Ctx) error {
	given := c.Get(webhookSecretHeader)
	if h.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.WebhookSecret)) != 1 {
		h.Logger.Warn("bank webhook rejected", zap.String("ip", c.IP()))
		return fail(c, fiber.StatusUnauthorized, "unauthorized", "Invalid webhook secret", nil)
	}

	var req BankWebhookRequest
	if parsed, err := parseBody(c, &req); !parsed {
		return err
	}
	txnDate, err := time.Parse(time.RFC3339, req.TransactionDate)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, string(services.KindValidation), "transaction_date must be RFC3339", nil)
	}

	result, err := h.Reconciliation.Ingest(c.UserContext(), services.IngestInput{
		TransactionID:   req.TransactionID,
		Amount:          req.Amount,
		Content:         req.Content,
		BankName:        req.BankName,
		AccountNumber:   req.AccountNumber,
		TransactionDate: txnDate,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}

	status := fiber.StatusCreated
	if result.Duplicate {
		status = fiber.StatusOK
	}
	return respond(c, status, result)
}
