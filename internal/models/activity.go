package models

import "time"

type Action string

const (
	ActionJoin     Action = "join"
	ActionCall     Action = "call"
	ActionRecall   Action = "recall"
	ActionComplete Action = "complete"
	ActionSkip     Action = "skip"
	ActionCancel   Action = "cancel"
	ActionTakeBack Action = "takeback"
	ActionLate     Action = "late"
	ActionPriority Action = "priority"
	ActionReorder  Action = "reorder"
	ActionRemove   Action = "remove"
)

// ActivityLogEntry is append-only; VisitorID is empty for queue-wide actions.
type ActivityLogEntry struct {
	ID        string    `json:"id"`
	QueueID   string    `json:"queue_id"`
	VisitorID string    `json:"visitor_id,omitempty"`
	Action    Action    `json:"action"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
