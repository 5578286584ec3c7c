package task

import (
	"errors"
	"time"

	"tasktrail.org/internal/authz"
)

var (
	// ErrNotFound is a not-found condition, distinct from an authorization
	// denial; transports map it to 404, never 403.
	ErrNotFound     = errors.New("task not found")
	ErrInvalidInput = errors.New("task: invalid input")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Category is a coarse grouping label.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryPersonal Category = "personal"
	CategoryProject  Category = "project"
	CategoryMeeting  Category = "meeting"
	CategoryOther    Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryProject, CategoryMeeting, CategoryOther:
		return true
	}
	return false
}

// Task is the tracked unit of work. OrganizationID is stamped once at
// creation from the creator's organization and never changes afterwards,
// even when the task is owned by a user from another organization.
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	Category       Category   `json:"category"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	SortOrder      int        `json:"sortOrder"`
	OwnerID        string     `json:"ownerId"`
	OrganizationID string     `json:"organizationId"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Record narrows the task down to its authorization-relevant fields.
func (t *Task) Record() authz.TaskRecord {
	return authz.TaskRecord{ID: t.ID, OwnerID: t.OwnerID, OrganizationID: t.OrganizationID}
}

// IsOverdue reports whether the due date has passed for a still-open task.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.Status == StatusDone || t.Status == StatusCancelled {
		return false
	}
	return now.After(*t.DueDate)
}
