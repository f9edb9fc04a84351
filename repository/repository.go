package repository

import (
	"context"
	"errors"
	"time"

	"main/model"
)

var ErrTaskNotFound = errors.New("task not found")

// Patch is a partial update applied to a single task document. Nil pointer
// fields are left untouched; DueDate distinguishes "unchanged" (ClearDueDate
// and DueDate both unset) from "cleared" (ClearDueDate true).
type Patch struct {
	Text                  *string
	Note                  *string
	Status                *model.TaskStatus
	IsUrgent              *bool
	RecurrenceRule        *model.RecurrenceRule
	ReminderSent          *bool
	DueDate               *time.Time
	ClearDueDate          bool
	GoogleCalendarEventID *string
	ClearCalendarEventID  bool
}

// TaskRepository is the durable-store contract shared by the remote
// (MongoDB, authenticated mode) and local (SQLite, guest mode) stores.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.Task) error
	// CreateTasks persists the whole batch as a single durable write.
	CreateTasks(ctx context.Context, tasks []*model.Task) error
	GetUserTasks(ctx context.Context, userID string) ([]*model.Task, error)
	GetTaskByID(ctx context.Context, userID, taskID string) (*model.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, patch Patch) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	// DeleteByParent removes every task whose parent_id matches and returns
	// the number deleted.
	DeleteByParent(ctx context.Context, userID, parentID string) (int, error)
	CountUserTasks(ctx context.Context, userID string) (int, error)
	// FindScheduled returns non-completed tasks due inside [from, to),
	// ordered by due time ascending.
	FindScheduled(ctx context.Context, userID string, from, to time.Time) ([]*model.Task, error)
	FindByStatus(ctx context.Context, userID string, status model.TaskStatus) ([]*model.Task, error)
}
