// Package unreadwikis maintains the cross-site unread index: one row per
// (global user, wiki) recording the last known per-section counts and
// timestamps. Other sites read it during global aggregation.
package unreadwikis

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wb-go/wbf/dbpg"

	"github.com/house-cat/echo-notifications/internal/model"
)

// Repository provides access to the echo_unread_wikis table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new unread-wikis repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// UpdateCount records the latest local counts for one user on one wiki.
// A row with no unread notifications at all is removed instead of stored.
func (r *Repository) UpdateCount(
	ctx context.Context,
	globalUserID int64,
	wiki string,
	alertCount int, alertTime time.Time,
	messageCount int, messageTime time.Time,
) error {
	if alertCount == 0 && messageCount == 0 {
		query := `
			DELETE FROM echo_unread_wikis
			WHERE euw_user = $1 AND euw_wiki = $2;
        `

		if _, err := r.db.Master.ExecContext(ctx, query, globalUserID, wiki); err != nil {
			return fmt.Errorf("failed to delete unread wiki row: %w", err)
		}

		return nil
	}

	query := `
		INSERT INTO echo_unread_wikis (
		    euw_user, euw_wiki, euw_alerts, euw_alerts_ts, euw_messages, euw_messages_ts
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (euw_user, euw_wiki) DO UPDATE
		SET euw_alerts = EXCLUDED.euw_alerts,
		    euw_alerts_ts = EXCLUDED.euw_alerts_ts,
		    euw_messages = EXCLUDED.euw_messages,
		    euw_messages_ts = EXCLUDED.euw_messages_ts;
    `

	_, err := r.db.Master.ExecContext(
		ctx, query,
		globalUserID, wiki,
		alertCount, nullTime(alertTime),
		messageCount, nullTime(messageTime),
	)
	if err != nil {
		return fmt.Errorf("failed to update unread wiki row: %w", err)
	}

	return nil
}

// GetUnreadWikis returns every wiki on which the user has recorded unread
// notifications.
func (r *Repository) GetUnreadWikis(ctx context.Context, globalUserID int64) ([]model.UnreadWiki, error) {
	query := `
		SELECT euw_wiki, euw_alerts, euw_alerts_ts, euw_messages, euw_messages_ts
		FROM echo_unread_wikis
		WHERE euw_user = $1;
    `

	rows, err := r.db.Master.QueryContext(ctx, query, globalUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unread wikis: %w", err)
	}
	defer rows.Close()

	var wikis []model.UnreadWiki
	for rows.Next() {
		var (
			w                  model.UnreadWiki
			alertTs, messageTs sql.NullTime
		)
		if err := rows.Scan(&w.Wiki, &w.AlertCount, &alertTs, &w.MessageCount, &messageTs); err != nil {
			return nil, err
		}

		if alertTs.Valid {
			w.AlertTimestamp = alertTs.Time
		}
		if messageTs.Valid {
			w.MessageTimestamp = messageTs.Time
		}

		wikis = append(wikis, w)
	}

	return wikis, rows.Err()
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
