package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/api/dto"
	"github.com/house-cat/echo-notifications/internal/api/respond"
	"github.com/house-cat/echo-notifications/internal/model"
	"github.com/house-cat/echo-notifications/internal/repository/user"
	"github.com/house-cat/echo-notifications/internal/service/notifuser"
)

type userStore interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
}

// NotifUserFactory builds a request-scoped aggregator for one user.
type NotifUserFactory func(u model.User) (*notifuser.NotifUser, error)

// Handler exposes the per-user notification aggregator over HTTP.
type Handler struct {
	users     userStore
	factory   NotifUserFactory
	validator *validator.Validate
}

// NewHandler creates a notification handler.
func NewHandler(users userStore, factory NotifUserFactory, v *validator.Validate) *Handler {
	return &Handler{users: users, factory: factory, validator: v}
}

// aggregator resolves the user and builds their aggregator.
func (h *Handler) aggregator(c *ginext.Context, userID int64) (*notifuser.NotifUser, bool) {
	u, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("user not found"))
			return nil, false
		}

		zlog.Logger.Error().Err(err).Int64("user", userID).Msg("failed to load user")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return nil, false
	}

	agg, err := h.factory(u)
	if err != nil {
		if errors.Is(err, notifuser.ErrAnonymousUser) {
			respond.Fail(c.Writer, http.StatusBadRequest, err)
			return nil, false
		}

		zlog.Logger.Error().Err(err).Int64("user", userID).Msg("failed to build aggregator")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return nil, false
	}

	return agg, true
}

func (h *Handler) queryUserID(c *ginext.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid user_id"))
		return 0, false
	}
	return id, true
}

// GetCount returns the unread count for one section.
//
// Query parameters: user_id, section (default all), scope
// (local|global|preference, default preference), cached (default true),
// source (replica|master, default replica).
func (h *Handler) GetCount(c *ginext.Context) {
	userID, ok := h.queryUserID(c)
	if !ok {
		return
	}

	section, ok := parseSection(c)
	if !ok {
		return
	}

	agg, ok := h.aggregator(c, userID)
	if !ok {
		return
	}

	count, err := agg.NotificationCount(
		c.Request.Context(),
		parseCached(c), parseSource(c), section, parseScope(c),
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Int64("user", userID).Msg("failed to get notification count")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, map[string]any{"section": section, "count": count})
}

// GetLastUnread returns the latest unread notification timestamp for one
// section, or null when there is none.
func (h *Handler) GetLastUnread(c *ginext.Context) {
	userID, ok := h.queryUserID(c)
	if !ok {
		return
	}

	section, ok := parseSection(c)
	if !ok {
		return
	}

	agg, ok := h.aggregator(c, userID)
	if !ok {
		return
	}

	ts, err := agg.LastUnreadNotificationTime(
		c.Request.Context(),
		parseCached(c), parseSource(c), section, parseScope(c),
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Int64("user", userID).Msg("failed to get last unread time")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	var timestamp *time.Time
	if !ts.IsZero() {
		timestamp = &ts
	}

	respond.OK(c.Writer, map[string]any{"section": section, "timestamp": timestamp})
}

// GetCounts returns the full local (and optionally global) snapshot.
func (h *Handler) GetCounts(c *ginext.Context) {
	userID, ok := h.queryUserID(c)
	if !ok {
		return
	}

	agg, ok := h.aggregator(c, userID)
	if !ok {
		return
	}

	snapshot, err := agg.CountsAndTimestamps(c.Request.Context(), c.Query("global") == "1")
	if err != nil {
		zlog.Logger.Error().Err(err).Int64("user", userID).Msg("failed to get counts snapshot")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, snapshot)
}

// GetGlobalUpdateTime returns when the user's global counts last changed.
func (h *Handler) GetGlobalUpdateTime(c *ginext.Context) {
	userID, ok := h.queryUserID(c)
	if !ok {
		return
	}

	agg, ok := h.aggregator(c, userID)
	if !ok {
		return
	}

	ts, err := agg.GlobalUpdateTime(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Int64("user", userID).Msg("failed to get global update time")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	var timestamp *time.Time
	if !ts.IsZero() {
		timestamp = &ts
	}

	respond.OK(c.Writer, map[string]any{"timestamp": timestamp})
}

// MarkRead marks specific events read.
func (h *Handler) MarkRead(c *ginext.Context) {
	h.mark(c, func(ctx context.Context, agg *notifuser.NotifUser, ids []int64) (bool, error) {
		return agg.MarkRead(ctx, ids)
	})
}

// MarkUnRead marks specific events unread.
func (h *Handler) MarkUnRead(c *ginext.Context) {
	h.mark(c, func(ctx context.Context, agg *notifuser.NotifUser, ids []int64) (bool, error) {
		return agg.MarkUnRead(ctx, ids)
	})
}

func (h *Handler) mark(
	c *ginext.Context,
	op func(ctx context.Context, agg *notifuser.NotifUser, ids []int64) (bool, error),
) {
	var req dto.MarkReadRequest
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

	agg, ok := h.aggregator(c, req.UserID)
	if !ok {
		return
	}

	updated, err := op(c.Request.Context(), agg, coerceEventIDs(req.EventIDs))
	if err != nil {
		zlog.Logger.Error().Err(err).Int64("user", req.UserID).Msg("failed to update read state")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, map[string]any{"updated": updated})
}

// MarkAllRead marks everything read in the requested sections.
func (h *Handler) MarkAllRead(c *ginext.Context) {
	var req dto.MarkAllReadRequest
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

	sections := make([]model.Section, 0, len(req.Sections))
	for _, s := range req.Sections {
		section := model.Section(s)
		if !section.Valid() {
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid section %q", s))
			return
		}
		sections = append(sections, section)
	}

	agg, ok := h.aggregator(c, req.UserID)
	if !ok {
		return
	}

	updated, err := agg.MarkAllRead(c.Request.Context(), sections)
	if err != nil {
		zlog.Logger.Error().Err(err).Int64("user", req.UserID).Msg("failed to mark all read")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, map[string]any{"updated": updated})
}

// Reset invalidates and recomputes the user's cached counts.
func (h *Handler) Reset(c *ginext.Context) {
	var req dto.ResetRequest
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

	agg, ok := h.aggregator(c, req.UserID)
	if !ok {
		return
	}

	if err := agg.ResetNotificationCount(c.Request.Context(), model.DataSourceMaster); err != nil {
		zlog.Logger.Error().Err(err).Int64("user", req.UserID).Msg("failed to reset notification count")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, map[string]any{"reset": true})
}

func parseSection(c *ginext.Context) (model.Section, bool) {
	raw := c.Query("section")
	if raw == "" {
		return model.SectionAll, true
	}

	section := model.Section(raw)
	if !section.Valid() {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid section %q", raw))
		return "", false
	}
	return section, true
}

func parseScope(c *ginext.Context) notifuser.ForeignScope {
	switch c.Query("scope") {
	case "local":
		return notifuser.ScopeLocal
	case "global":
		return notifuser.ScopeGlobal
	default:
		return notifuser.ScopePreference
	}
}

func parseCached(c *ginext.Context) bool {
	return c.Query("cached") != "0"
}

func parseSource(c *ginext.Context) model.DataSource {
	if c.Query("source") == "master" {
		return model.DataSourceMaster
	}
	return model.DataSourceReplica
}

// coerceEventIDs keeps numeric entries of a mixed-type id list, tolerating
// legacy callers that send ids as strings.
func coerceEventIDs(raw []any) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch id := v.(type) {
		case float64:
			if id == float64(int64(id)) {
				ids = append(ids, int64(id))
			}
		case string:
			if n, err := strconv.ParseInt(id, 10, 64); err == nil {
				ids = append(ids, n)
			}
		}
	}
	return ids
}
