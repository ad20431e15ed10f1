package dto

// MarkReadRequest asks to flip the read state of specific events. EventIDs is
// deliberately loose: legacy callers send ids as strings or mixed types, and
// non-numeric entries are filtered out rather than rejected.
type MarkReadRequest struct {
	UserID   int64 `json:"user_id" validate:"required"`
	EventIDs []any `json:"event_ids" validate:"required"`
}

// MarkAllReadRequest asks to mark everything read in the given sections.
// An empty or "all"-containing list covers every section.
type MarkAllReadRequest struct {
	UserID   int64    `json:"user_id" validate:"required"`
	Sections []string `json:"sections"`
}

// ResetRequest asks to invalidate and recompute a user's cached counts.
type ResetRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

// EventRequest asks to dispatch a platform event to a set of users.
type EventRequest struct {
	Type      string  `json:"type" validate:"required"`
	Title     string  `json:"title"`
	AgentID   int64   `json:"agent_id"`
	Extra     string  `json:"extra"`
	BundleKey string  `json:"bundle_key"`
	TargetIDs []int64 `json:"target_ids" validate:"required,min=1"`
}
