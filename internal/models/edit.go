package models

import (
	"fmt"
	"time"
)

// EditAction is a local mutation to propagate upstream
type EditAction string

const (
	ActionMarkRead   EditAction = "mark_read"
	ActionMarkUnread EditAction = "mark_unread"
	ActionStar       EditAction = "star"
	ActionUnstar     EditAction = "unstar"
	ActionTagAdd     EditAction = "tag_add"
	ActionTagRemove  EditAction = "tag_remove"
)

// Valid reports whether a is a known action
func (a EditAction) Valid() bool {
	switch a {
	case ActionMarkRead, ActionMarkUnread, ActionStar, ActionUnstar, ActionTagAdd, ActionTagRemove:
		return true
	}
	return false
}

// IsTagAction reports whether the action needs a tag name
func (a EditAction) IsTagAction() bool {
	return a == ActionTagAdd || a == ActionTagRemove
}

// EditStatus is the delivery state of a queued edit
type EditStatus string

const (
	EditPending   EditStatus = "pending"
	EditFailed    EditStatus = "failed"
	EditAbandoned EditStatus = "abandoned"
)

// EditQueueEntry is a durable local mutation awaiting propagation
type EditQueueEntry struct {
	ID            int64      `json:"id" db:"id"`
	ItemID        string     `json:"item_id" db:"item_id"`
	Action        EditAction `json:"action" db:"action"`
	Tag           string     `json:"tag,omitempty" db:"tag"`
	EnqueuedAt    time.Time  `json:"enqueued_at" db:"enqueued_at"`
	Attempts      int        `json:"attempts" db:"attempts"`
	LastError     string     `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt time.Time  `json:"next_attempt_at" db:"next_attempt_at"`
	Status        EditStatus `json:"status" db:"status"`
}

// Family groups actions that overwrite each other for one item.
// Only the latest entry of a family needs to reach the remote service.
func (e *EditQueueEntry) Family() string {
	switch e.Action {
	case ActionMarkRead, ActionMarkUnread:
		return e.ItemID + "|read"
	case ActionStar, ActionUnstar:
		return e.ItemID + "|star"
	default:
		return fmt.Sprintf("%s|tag:%s", e.ItemID, e.Tag)
	}
}

// ApplyTo applies the mutation to a local article
func (e *EditQueueEntry) ApplyTo(a *Article) {
	switch e.Action {
	case ActionMarkRead:
		a.Read = true
	case ActionMarkUnread:
		a.Read = false
	case ActionStar:
		a.Starred = true
	case ActionUnstar:
		a.Starred = false
	case ActionTagAdd:
		a.SetTag(e.Tag, true)
	case ActionTagRemove:
		a.SetTag(e.Tag, false)
	}
}
