// Package remote serves the polling endpoint other sites call during
// cross-site aggregation. The path and response shape follow the legacy
// notifications API so existing peers keep working unchanged.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/api/respond"
	"github.com/house-cat/echo-notifications/internal/model"
	"github.com/house-cat/echo-notifications/internal/repository/user"
	"github.com/house-cat/echo-notifications/internal/service/notifuser"
)

type userStore interface {
	GetUserByGlobalID(ctx context.Context, globalID int64) (model.User, error)
}

// NotifUserFactory builds a request-scoped aggregator for one user.
type NotifUserFactory func(u model.User) (*notifuser.NotifUser, error)

// Handler answers foreign aggregation queries with this site's local counts.
type Handler struct {
	users   userStore
	factory NotifUserFactory
}

// NewHandler creates a remote query handler.
func NewHandler(users userStore, factory NotifUserFactory) *Handler {
	return &Handler{users: users, factory: factory}
}

type sectionPayload struct {
	RawCount int         `json:"rawcount"`
	List     []listEntry `json:"list"`
}

type listEntry struct {
	Timestamp timestampPayload `json:"timestamp"`
}

type timestampPayload struct {
	MW string `json:"mw"`
}

// Query handles GET <api path>?action=query&meta=notifications. Only the
// shape this subsystem itself requests from peers is implemented; anything
// else gets a 400.
func (h *Handler) Query(c *ginext.Context) {
	if c.Query("action") != "query" || c.Query("meta") != "notifications" {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("unsupported query"))
		return
	}

	globalID, err := strconv.ParseInt(c.Query("notglobaluserid"), 10, 64)
	if err != nil || globalID <= 0 {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid notglobaluserid"))
		return
	}

	u, err := h.users.GetUserByGlobalID(c.Request.Context(), globalID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("user not found"))
			return
		}

		zlog.Logger.Error().Err(err).Int64("global_id", globalID).Msg("failed to load user for remote query")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	agg, err := h.factory(u)
	if err != nil {
		zlog.Logger.Error().Err(err).Int64("global_id", globalID).Msg("failed to build aggregator for remote query")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	notifications := make(map[string]sectionPayload, len(model.Sections))
	for _, section := range model.Sections {
		count, err := agg.LocalNotificationCount(c.Request.Context(), true, model.DataSourceReplica, section)
		if err != nil {
			zlog.Logger.Error().Err(err).Int64("global_id", globalID).Msg("failed to compute local counts for remote query")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			return
		}

		ts, err := agg.LastUnreadNotificationTime(
			c.Request.Context(), true, model.DataSourceReplica, section, notifuser.ScopeLocal,
		)
		if err != nil {
			zlog.Logger.Error().Err(err).Int64("global_id", globalID).Msg("failed to compute local timestamps for remote query")
			respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			return
		}

		payload := sectionPayload{RawCount: count, List: []listEntry{}}
		if !ts.IsZero() {
			payload.List = append(payload.List, listEntry{
				Timestamp: timestampPayload{MW: ts.UTC().Format(model.MWTimestampLayout)},
			})
		}
		notifications[string(section)] = payload
	}

	respond.JSON(c.Writer, map[string]any{
		"query": map[string]any{"notifications": notifications},
	})
}
