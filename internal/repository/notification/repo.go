package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/house-cat/echo-notifications/internal/model"
)

var ErrEventNotFound = errors.New("event not found")

// Repository fetches lightweight notification records and creates new
// event/notification rows on dispatch.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new notification repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// conn picks the database node for the requested source.
func (r *Repository) conn(source model.DataSource) *sql.DB {
	if source == model.DataSourceMaster || len(r.db.Slaves) == 0 {
		return r.db.Master
	}
	return r.db.Slaves[0]
}

// FetchUnreadByUser returns the user's unread notifications of the given
// event types, most recent first, at most limit rows. An empty type set
// yields no rows.
func (r *Repository) FetchUnreadByUser(
	ctx context.Context,
	source model.DataSource,
	userID int64,
	limit int,
	eventTypes []string,
) ([]model.Notification, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}

	query := `
		SELECT n.notification_user, n.notification_event, e.event_type, e.event_timestamp
		FROM echo_notification n
		JOIN echo_event e ON e.event_id = n.notification_event
		WHERE n.notification_user = $1
		  AND n.notification_read_timestamp IS NULL
		  AND e.event_type = ANY($2)
		ORDER BY e.event_timestamp DESC, n.notification_event DESC
		LIMIT $3;
    `

	rows, err := r.conn(source).QueryContext(ctx, query, userID, pq.Array(eventTypes), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unread notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.UserID, &n.EventID, &n.EventType, &n.Timestamp); err != nil {
			return nil, err
		}

		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// CreateEvent inserts a new immutable event and returns its ID.
func (r *Repository) CreateEvent(ctx context.Context, event model.Event) (int64, error) {
	query := `
		INSERT INTO echo_event (
		    event_type, event_title, event_agent_id, event_extra, event_bundle_key, event_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING event_id;
    `

	var id int64
	err := r.db.Master.QueryRowContext(
		ctx, query,
		event.Type, event.Title, event.AgentID, event.Extra, event.BundleKey, event.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create event: %w", err)
	}

	return id, nil
}

// CreateNotification pairs an existing event with a target user. Dispatching
// the same event to the same user twice is a no-op.
func (r *Repository) CreateNotification(ctx context.Context, userID, eventID int64) error {
	query := `
		INSERT INTO echo_notification (notification_user, notification_event)
		VALUES ($1, $2)
		ON CONFLICT (notification_user, notification_event) DO NOTHING;
    `

	if _, err := r.db.Master.ExecContext(ctx, query, userID, eventID); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// GetEvent loads one event by ID.
func (r *Repository) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	query := `
		SELECT event_id, event_type, event_title, event_agent_id, event_extra, event_bundle_key, event_timestamp
		FROM echo_event
		WHERE event_id = $1;
    `

	var e model.Event
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Type, &e.Title, &e.AgentID, &e.Extra, &e.BundleKey, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, ErrEventNotFound
		}

		return model.Event{}, fmt.Errorf("failed to get event: %w", err)
	}

	return e, nil
}
