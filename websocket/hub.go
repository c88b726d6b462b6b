package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub fans out "payment state changed" signals to subscribers of a booking.
// A subscription lives exactly as long as the context it was created with.
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[chan struct{}]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[chan struct{}]struct{}),
		logger: logger,
	}
}

// Subscribe returns a channel that receives a value whenever Publish is called
// for bookingID. Signals coalesce: a slow reader sees at most one pending
// value. The channel is closed once ctx is done.
func (h *Hub) Subscribe(ctx context.Context, bookingID uuid.UUID) <-chan struct{} {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[bookingID] == nil {
		h.subs[bookingID] = make(map[chan struct{}]struct{})
	}
	h.subs[bookingID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[bookingID], ch)
		if len(h.subs[bookingID]) == 0 {
			delete(h.subs, bookingID)
		}
		close(ch)
		h.mu.Unlock()
		h.logger.Debug("payment status subscription closed", zap.String("booking_id", bookingID.String()))
	}()
	return ch
}

// Publish never blocks.
func (h *Hub) Publish(bookingID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[bookingID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) Subscribers(bookingID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[bookingID])
}
