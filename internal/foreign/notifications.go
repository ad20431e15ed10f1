// Package foreign aggregates notification data from other sites, either from
// the locally replicated unread-wikis index or from the sites' own APIs.
package foreign

import (
	"context"
	"time"

	"github.com/house-cat/echo-notifications/internal/model"
)

// CrossWikiOption is the user preference controlling cross-wiki
// notifications.
const CrossWikiOption = "echo-cross-wiki-notifications"

type unreadWikisRepo interface {
	GetUnreadWikis(ctx context.Context, globalUserID int64) ([]model.UnreadWiki, error)
}

// Notifications reads a user's foreign unread state from the unread-wikis
// index. Rows are loaded once per instance; instances are request-scoped.
type Notifications struct {
	repo      unreadWikisRepo
	user      model.User
	localWiki string

	loaded bool
	wikis  []model.UnreadWiki
}

// NewNotifications creates a foreign-notification reader for one user.
// Rows for localWiki are excluded, since local data is computed directly.
func NewNotifications(repo unreadWikisRepo, user model.User, localWiki string) *Notifications {
	return &Notifications{repo: repo, user: user, localWiki: localWiki}
}

// IsEnabledByUser reports whether the user opted into cross-wiki
// notifications.
func (n *Notifications) IsEnabledByUser() bool {
	return n.user.Option(CrossWikiOption)
}

func (n *Notifications) load(ctx context.Context) error {
	if n.loaded {
		return nil
	}

	if n.user.GlobalID == 0 {
		n.loaded = true
		return nil
	}

	rows, err := n.repo.GetUnreadWikis(ctx, n.user.GlobalID)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if row.Wiki == n.localWiki {
			continue
		}
		n.wikis = append(n.wikis, row)
	}
	n.loaded = true
	return nil
}

// Count sums the recorded unread counts for the section across all foreign
// wikis.
func (n *Notifications) Count(ctx context.Context, section model.Section) (int, error) {
	if err := n.load(ctx); err != nil {
		return 0, err
	}

	count := 0
	for _, w := range n.wikis {
		switch section {
		case model.SectionAlert:
			count += w.AlertCount
		case model.SectionMessage:
			count += w.MessageCount
		case model.SectionAll:
			count += w.AlertCount + w.MessageCount
		}
	}
	return count, nil
}

// Timestamp returns the latest recorded unread timestamp for the section
// across all foreign wikis, or the zero time when there is none.
func (n *Notifications) Timestamp(ctx context.Context, section model.Section) (time.Time, error) {
	if err := n.load(ctx); err != nil {
		return time.Time{}, err
	}

	var latest time.Time
	for _, w := range n.wikis {
		switch section {
		case model.SectionAlert:
			latest = model.MaxTime(latest, w.AlertTimestamp)
		case model.SectionMessage:
			latest = model.MaxTime(latest, w.MessageTimestamp)
		case model.SectionAll:
			latest = model.MaxTime(latest, model.MaxTime(w.AlertTimestamp, w.MessageTimestamp))
		}
	}
	return latest, nil
}

// Wikis returns the foreign wikis that have unread notifications in the
// section.
func (n *Notifications) Wikis(ctx context.Context, section model.Section) ([]string, error) {
	if err := n.load(ctx); err != nil {
		return nil, err
	}

	var wikis []string
	for _, w := range n.wikis {
		unread := false
		switch section {
		case model.SectionAlert:
			unread = w.AlertCount > 0
		case model.SectionMessage:
			unread = w.MessageCount > 0
		case model.SectionAll:
			unread = w.AlertCount > 0 || w.MessageCount > 0
		}
		if unread {
			wikis = append(wikis, w.Wiki)
		}
	}
	return wikis, nil
}
