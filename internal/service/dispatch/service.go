// Package dispatch turns platform events into per-user notifications and
// keeps the affected users' cached counts fresh.
package dispatch

import (
	"context"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/attribute"
	"github.com/house-cat/echo-notifications/internal/model"
	"github.com/house-cat/echo-notifications/internal/rabbitmq/queue"
)

const talkCategory = "edit-user-talk"

type eventStore interface {
	CreateEvent(ctx context.Context, event model.Event) (int64, error)
	CreateNotification(ctx context.Context, userID, eventID int64) error
}

// Aggregator is the slice of the per-user notification aggregator the
// dispatcher needs.
type Aggregator interface {
	ResetNotificationCount(ctx context.Context, source model.DataSource) error
	FlagCacheWithNewTalkNotification(ctx context.Context)
}

// AggregatorFactory builds a request-scoped aggregator for one target user.
type AggregatorFactory func(user model.User) (Aggregator, error)

// Service creates event and notification rows for dispatched events.
type Service struct {
	store      eventStore
	attributes *attribute.Manager
	factory    AggregatorFactory
}

// NewService creates a dispatch service.
func NewService(store eventStore, attributes *attribute.Manager, factory AggregatorFactory) *Service {
	return &Service{store: store, attributes: attributes, factory: factory}
}

// DispatchEvent stores the event once and fans it out to every target user.
// A failure for one target does not stop delivery to the others.
func (s *Service) DispatchEvent(ctx context.Context, msg queue.EventMessage) error {
	event := model.Event{
		Type:      msg.Type,
		Title:     msg.Title,
		AgentID:   msg.AgentID,
		Extra:     msg.Extra,
		BundleKey: msg.BundleKey,
		CreatedAt: msg.Timestamp,
	}

	eventID, err := s.store.CreateEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("dispatch event: %w", err)
	}

	isTalk := s.attributes.NotificationCategory(msg.Type) == talkCategory

	var failed int
	for _, target := range msg.Targets {
		if target.IsAnon() {
			continue
		}

		if err := s.notifyUser(ctx, target, eventID, isTalk); err != nil {
			zlog.Logger.Error().Err(err).
				Int64("user", target.ID).
				Int64("event", eventID).
				Msg("failed to notify user")
			failed++
		}
	}

	if failed == len(msg.Targets) && failed > 0 {
		return fmt.Errorf("dispatch event %d: all %d targets failed", eventID, failed)
	}

	return nil
}

func (s *Service) notifyUser(ctx context.Context, target model.User, eventID int64, isTalk bool) error {
	if err := s.store.CreateNotification(ctx, target.ID, eventID); err != nil {
		return err
	}

	agg, err := s.factory(target)
	if err != nil {
		return err
	}

	if err := agg.ResetNotificationCount(ctx, model.DataSourceMaster); err != nil {
		return err
	}

	if isTalk {
		agg.FlagCacheWithNewTalkNotification(ctx)
	}

	return nil
}
