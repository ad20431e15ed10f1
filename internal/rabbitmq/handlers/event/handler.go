package event

import (
	"context"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/rabbitmq/queue"
)

type dispatchService interface {
	DispatchEvent(ctx context.Context, msg queue.EventMessage) error
}

// Handler processes consumed event dispatch messages.
type Handler struct {
	service dispatchService
}

// NewHandler creates a dispatch message handler.
func NewHandler(svc dispatchService) *Handler {
	return &Handler{service: svc}
}

// HandleMessage dispatches one event, retrying with backoff on failure.
// Messages that keep failing are dropped to the DLQ by the broker.
func (h *Handler) HandleMessage(ctx context.Context, msg queue.EventMessage, strategy retry.Strategy) {
	attempt := 0
	currentDelay := strategy.Delay

	for attempt < strategy.Attempts {
		err := h.service.DispatchEvent(ctx, msg)
		if err == nil {
			zlog.Logger.Printf("event %s dispatched to %d users", msg.ID, len(msg.Targets))
			return
		}

		attempt++
		zlog.Logger.Printf("failed to dispatch event %s: %v, retry %d/%d",
			msg.ID, err, attempt, strategy.Attempts,
		)

		time.Sleep(currentDelay)
		currentDelay = time.Duration(float64(currentDelay) * strategy.Backoff)
	}

	zlog.Logger.Printf("event %s failed after %d attempts, moving to DLQ", msg.ID, attempt)
}
