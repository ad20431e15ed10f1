package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/house-cat/echo-notifications/internal/api/handlers/event"
	"github.com/house-cat/echo-notifications/internal/api/handlers/notification"
	"github.com/house-cat/echo-notifications/internal/api/handlers/remote"
)

// Config carries the route-level knobs.
type Config struct {
	// RemoteAPIPath is the legacy path peers poll, e.g. "/w/api.php".
	RemoteAPIPath string
}

func New(notif *notification.Handler, events *event.Handler, rem *remote.Handler, cfg Config) *ginext.Engine {
	e := ginext.New()
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	api := e.Group("/api/notifications")

	api.GET("/count", notif.GetCount)
	api.GET("/last-unread", notif.GetLastUnread)
	api.GET("/counts", notif.GetCounts)
	api.GET("/global-update-time", notif.GetGlobalUpdateTime)
	api.POST("/mark-read", notif.MarkRead)
	api.POST("/mark-unread", notif.MarkUnRead)
	api.POST("/mark-all-read", notif.MarkAllRead)
	api.POST("/reset", notif.Reset)

	e.POST("/api/events", events.Create)

	remotePath := cfg.RemoteAPIPath
	if remotePath == "" {
		remotePath = "/w/api.php"
	}
	e.GET(remotePath, rem.Query)

	return e
}
