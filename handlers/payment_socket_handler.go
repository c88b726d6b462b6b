package handlers

import (
	"context"
	"time"

	"github.com/anjiri1684/homestay_booking/middleware"
	"github.com/anjiri1684/homestay_booking/services"
	"github.com/anjiri1684/homestay_booking/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const socketAuthTimeout = 10 * time.Second

type socketAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// PaymentSocketHandler pushes the payment session status of one booking over
// a websocket. The client must authenticate with its first message.
type PaymentSocketHandler struct {
	Sessions  *services.PaymentSessionService
	Hub       *websocket.Hub
	Logger    *zap.Logger
	JWTSecret string
}

func NewPaymentSocketHandler(sessions *services.PaymentSessionService, hub *websocket.Hub, logger *zap.Logger, jwtSecret string) *PaymentSocketHandler {
	return &PaymentSocketHandler{Sessions: sessions, Hub: hub, Logger: logger, JWTSecret: jwtSecret}
}

// RequireUpgrade rejects plain HTTP requests on websocket routes.
func RequireUpgrade(c *fiber.Ctx) error {
	if !websocketcontrib.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

func (h *PaymentSocketHandler) ServePaymentStatus(c *websocketcontrib.Conn) {
	defer c.Close()

	bookingID, err := uuid.Parse(c.Params("bookingId"))
	if err != nil {
		_ = c.WriteJSON(fiber.Map{"type": "error", "error": "Invalid booking ID"})
		return
	}

	_ = c.SetReadDeadline(time.Now().Add(socketAuthTimeout))
	var auth socketAuthMessage
	if err := c.ReadJSON(&auth); err != nil || auth.Type != "auth" {
		h.Logger.Debug("payment socket auth message missing", zap.Error(err))
		_ = c.WriteJSON(fiber.Map{"type": "error", "error": "Invalid or missing auth message"})
		return
	}
	claims, err := middleware.ParseToken(h.JWTSecret, auth.Token)
	if err != nil {
		_ = c.WriteJSON(fiber.Map{"type": "error", "error": "Invalid token"})
		return
	}
	_ = c.SetReadDeadline(time.Time{})
	actor, _ := actorFromClaims(claims)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status, err := h.Sessions.GetStatus(ctx, bookingID, actor)
	if err != nil {
		_ = c.WriteJSON(fiber.Map{"type": "error", "error": err.Error(), "code": string(services.KindOf(err))})
		return
	}
	updates := h.Hub.Subscribe(ctx, bookingID)

	// The reader only watches for the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if !websocketcontrib.IsCloseError(err, websocketcontrib.CloseNormalClosure, websocketcontrib.CloseGoingAway) {
					h.Logger.Debug("payment socket read failed", zap.String("booking_id", bookingID.String()), zap.Error(err))
				}
				return
			}
		}
	}()

	h.Logger.Debug("payment socket subscribed", zap.String("booking_id", bookingID.String()), zap.String("actor", actor.ID))

	for {
		if err := c.WriteJSON(fiber.Map{"type": "payment_status", "data": status}); err != nil {
			return
		}

		var timer *time.Timer
		var expiry <-chan time.Time
		if status.Status == services.SessionPending {
			timer = time.NewTimer(time.Duration(status.SecondsRemaining+1) * time.Second)
			expiry = timer.C
		}

		done := false
		select {
		case <-ctx.Done():
			done = true
		case _, open := <-updates:
			done = !open
		case <-expiry:
		}
		if timer != nil {
			timer.Stop()
		}
		if done {
			return
		}

		status, err = h.Sessions.GetStatus(ctx, bookingID, actor)
		if err != nil {
			h.Logger.Warn("payment socket status refresh failed", zap.String("booking_id", bookingID.String()), zap.Error(err))
			return
		}
	}
}
