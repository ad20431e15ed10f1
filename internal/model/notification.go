package model

import (
	"time"
)

// Section is a coarse grouping of notifications shown as separate badges.
type Section string

const (
	SectionAlert   Section = "alert"
	SectionMessage Section = "message"
	// SectionAll is the aggregate pseudo-section covering every real section.
	SectionAll Section = "all"
)

// Sections lists the real sections, excluding the aggregate SectionAll.
var Sections = []Section{SectionAlert, SectionMessage}

// Valid reports whether s names a real section or the aggregate.
func (s Section) Valid() bool {
	return s == SectionAlert || s == SectionMessage || s == SectionAll
}

// Event is an immutable fact a user can be notified about.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	AgentID   int64     `json:"agent_id"`
	Extra     string    `json:"extra"`
	BundleKey string    `json:"bundle_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification pairs an event with a target user. It is created on dispatch
// and mutated only to flip the read flag; rows are never deleted so they stay
// available for moderation.
type Notification struct {
	UserID    int64     `json:"user_id"`
	EventID   int64     `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	ReadAt    time.Time `json:"read_at"`
}

// User is the notification target. GlobalID is zero when the account is not
// attached to the central identity store.
type User struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	GlobalID int64           `json:"global_id"`
	Groups   []string        `json:"groups"`
	Options  map[string]bool `json:"options"`
}

// IsAnon reports whether this is an unauthenticated identity.
func (u User) IsAnon() bool {
	return u.ID == 0
}

// InGroup reports whether the user belongs to the given group.
func (u User) InGroup(group string) bool {
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Option returns the user's preference value for key. Unset preferences
// default to enabled.
func (u User) Option(key string) bool {
	if v, ok := u.Options[key]; ok {
		return v
	}
	return true
}

// SectionData holds the count and latest-unread timestamp for one section.
// A zero Timestamp means there are no unread notifications.
type SectionData struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Counts maps each section, including SectionAll, to its data.
type Counts map[Section]SectionData

// CountsAndTimestamps is the full cached snapshot for one user. Global is nil
// unless cross-wiki data was requested and available.
type CountsAndTimestamps struct {
	Local  Counts `json:"local"`
	Global Counts `json:"global,omitempty"`
}

// UnreadWiki is one row of the cross-site unread index: the last known
// per-section state of a user's notifications on one wiki.
type UnreadWiki struct {
	Wiki             string    `json:"wiki"`
	AlertCount       int       `json:"alert_count"`
	AlertTimestamp   time.Time `json:"alert_timestamp"`
	MessageCount     int       `json:"message_count"`
	MessageTimestamp time.Time `json:"message_timestamp"`
}

// TrustMode selects how foreign counts are aggregated while the fleet
// migrates data formats. The zero value is the steady-state mode.
type TrustMode int

const (
	// TrustModeDefault trusts the unread-wikis index rows as-is.
	TrustModeDefault TrustMode = iota
	// TrustModeSection distrusts the per-section split in the index but
	// trusts that listed wikis do have unread notifications.
	TrustModeSection
	// TrustModeBundle distrusts the index entirely except for wiki
	// membership and asks each wiki's API for authoritative numbers.
	TrustModeBundle
)

// ParseTrustMode maps a config string to a TrustMode.
func ParseTrustMode(s string) (TrustMode, bool) {
	switch s {
	case "", "default":
		return TrustModeDefault, true
	case "section":
		return TrustModeSection, true
	case "bundle":
		return TrustModeBundle, true
	}
	return TrustModeDefault, false
}

// DataSource selects which database node serves a read.
type DataSource int

const (
	// DataSourceReplica reads from a replica when one is configured.
	DataSourceReplica DataSource = iota
	// DataSourceMaster reads from the master, for paths that must not see
	// replication lag.
	DataSourceMaster
)

// MWTimestampLayout is the 14-digit timestamp format used on the wire and in
// the unread-wikis index, kept for compatibility with existing sites.
const MWTimestampLayout = "20060102150405"

// MaxTime returns the later of two timestamps, treating the zero value as
// "no timestamp".
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
