// Package gateway translates unread-count and read-state operations into
// queries against the notification store.
package gateway

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/house-cat/echo-notifications/internal/model"
)

// Gateway provides capped counting and read-flag updates for one store.
type Gateway struct {
	db *dbpg.DB
}

// New creates a notification store gateway.
func New(db *dbpg.DB) *Gateway {
	return &Gateway{db: db}
}

// conn picks the database node for the requested source. Reads fall back to
// the master when no replica is configured.
func (g *Gateway) conn(source model.DataSource) *sql.DB {
	if source == model.DataSourceMaster || len(g.db.Slaves) == 0 {
		return g.db.Master
	}
	return g.db.Slaves[0]
}

// CountCapped returns the number of unread notifications the user has for the
// given event types, counting at most cap rows. The inner LIMIT stops the
// scan once the cap is reached, so huge backlogs stay cheap to count.
func (g *Gateway) CountCapped(
	ctx context.Context,
	source model.DataSource,
	userID int64,
	eventTypes []string,
	cap int,
) (int, error) {
	if len(eventTypes) == 0 {
		return 0, nil
	}

	query := `
		SELECT count(*) FROM (
			SELECT 1
			FROM echo_notification n
			JOIN echo_event e ON e.event_id = n.notification_event
			WHERE n.notification_user = $1
			  AND n.notification_read_timestamp IS NULL
			  AND e.event_type = ANY($2)
			LIMIT $3
		) capped;
    `

	var count int
	err := g.conn(source).QueryRowContext(ctx, query, userID, pq.Array(eventTypes), cap).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// MarkRead flags the given events read for the user and returns how many rows
// changed.
func (g *Gateway) MarkRead(ctx context.Context, userID int64, eventIDs []int64) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE echo_notification
		SET notification_read_timestamp = now()
		WHERE notification_user = $1
		  AND notification_event = ANY($2)
		  AND notification_read_timestamp IS NULL;
    `

	res, err := g.db.Master.ExecContext(ctx, query, userID, pq.Array(eventIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return rows, nil
}

// MarkUnRead flags the given events unread for the user and returns how many
// rows changed.
func (g *Gateway) MarkUnRead(ctx context.Context, userID int64, eventIDs []int64) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE echo_notification
		SET notification_read_timestamp = NULL
		WHERE notification_user = $1
		  AND notification_event = ANY($2)
		  AND notification_read_timestamp IS NOT NULL;
    `

	res, err := g.db.Master.ExecContext(ctx, query, userID, pq.Array(eventIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications unread: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return rows, nil
}
