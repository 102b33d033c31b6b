package model

import (
	"time"
)

type TaskEventKind string

const (
	EventStatusChanged TaskEventKind = "status_changed"
	EventAssigned      TaskEventKind = "assigned"
	EventCreated       TaskEventKind = "created"
)

// TaskEvent is pushed to the task event queue whenever a task changes hands
// or status. The history worker turns it into a TaskHistoryEntry.
type TaskEvent struct {
	ID         string        `json:"id"`
	TaskID     int64         `json:"task_id"`
	ActorID    int64         `json:"actor_id"`
	Kind       TaskEventKind `json:"kind"`
	From       *string       `json:"from,omitempty"`
	To         *string       `json:"to,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type TaskHistoryEntry struct {
	ID         int64         `json:"id" db:"id"`
	EventID    string        `json:"eventId" db:"event_id"`
	TaskID     int64         `json:"taskId" db:"task_id"`
	ActorID    int64         `json:"actorId" db:"actor_id"`
	Kind       TaskEventKind `json:"kind" db:"kind"`
	FromValue  *string       `json:"from,omitempty" db:"from_value"`
	ToValue    *string       `json:"to,omitempty" db:"to_value"`
	OccurredAt time.Time     `json:"occurredAt" db:"occurred_at"`
}
