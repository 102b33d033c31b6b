package model

import (
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// transitions lists the statuses reachable from each status.
var transitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusInProgress, StatusDone},
	StatusInProgress: {StatusPending, StatusDone},
	StatusDone:       {StatusInProgress},
}

func (s TaskStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether a task in status s may move to next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Task struct {
	ID           int64      `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	Slug         string     `json:"slug" db:"slug"`
	Description  string     `json:"description" db:"description"`
	Status       TaskStatus `json:"status" db:"status"`
	CreatorID    int64      `json:"creatorId" db:"creator_id"`
	AssignedToID *int64     `json:"assignedToId,omitempty" db:"assigned_to_id"`
	DueDate      *time.Time `json:"dueDate,omitempty" db:"due_date"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`

	CreatorUsername    *string `json:"creatorUsername,omitempty" db:"creator_username"`       // For display
	AssignedToUsername *string `json:"assignedToUsername,omitempty" db:"assigned_to_username"` // For display
}

// IsAssignedTo reports whether the task is assigned to userID.
func (t Task) IsAssignedTo(userID int64) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

// TaskStats counts tasks per status.
type TaskStats struct {
	Total      int `json:"total" db:"total"`
	Pending    int `json:"pending" db:"pending"`
	InProgress int `json:"inProgress" db:"in_progress"`
	Done       int `json:"done" db:"done"`
}
