// Package event accepts platform events over HTTP and enqueues them for
// asynchronous dispatch.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/api/dto"
	"github.com/house-cat/echo-notifications/internal/api/respond"
	"github.com/house-cat/echo-notifications/internal/model"
	"github.com/house-cat/echo-notifications/internal/rabbitmq/queue"
	"github.com/house-cat/echo-notifications/internal/repository/user"
)

type eventQueue interface {
	Publish(msg queue.EventMessage, strategy retry.Strategy) error
}

type userStore interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
}

// Handler enqueues dispatch requests.
type Handler struct {
	queue     eventQueue
	users     userStore
	validator *validator.Validate
	strategy  retry.Strategy
}

// NewHandler creates an event ingestion handler.
func NewHandler(q eventQueue, users userStore, v *validator.Validate, strategy retry.Strategy) *Handler {
	return &Handler{queue: q, users: users, validator: v, strategy: strategy}
}

// Create validates the event, resolves its target users and publishes the
// dispatch message. Unknown target ids fail the whole request so the caller
// learns about them; dispatch itself is asynchronous.
func (h *Handler) Create(c *ginext.Context) {
	var req dto.EventRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	targets := make([]model.User, 0, len(req.TargetIDs))
	for _, id := range req.TargetIDs {
		u, err := h.users.GetUser(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("unknown target user %d", id))
				return
			}

			zlog.Logger.Error().Err(err).Int64("user", id).Msg("failed to load target user")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			return
		}
		targets = append(targets, u)
	}

	msg := queue.EventMessage{
		ID:        uuid.New(),
		Type:      req.Type,
		Title:     req.Title,
		AgentID:   req.AgentID,
		Extra:     req.Extra,
		BundleKey: req.BundleKey,
		Timestamp: time.Now().UTC(),
		Targets:   targets,
	}

	if err := h.queue.Publish(msg, h.strategy); err != nil {
		zlog.Logger.Error().Err(err).Str("event", msg.ID.String()).Msg("failed to publish event")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Created(c.Writer, map[string]any{"id": msg.ID})
}
