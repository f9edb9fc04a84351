package usecase

import (
	"context"
	"fmt"
	"time"

	"main/model"
	"main/repository"
	"main/utils"
)

// NextDueDate advances a due date by exactly one recurrence unit. The next
// occurrence is computed from the current due date, never from "now", so a
// late completion does not drift the schedule. Monthly addition uses Go's
// normalizing calendar arithmetic (Jan 31 + 1 month lands in March).
func NextDueDate(due time.Time, rule model.RecurrenceRule) (time.Time, bool) {
	switch rule {
	case model.RecurrenceDaily:
		return due.AddDate(0, 0, 1), true
	case model.RecurrenceWeekly:
		return due.AddDate(0, 0, 7), true
	case model.RecurrenceMonthly:
		return due.AddDate(0, 1, 0), true
	}
	return time.Time{}, false
}

// spawnNextOccurrence creates the follow-up instance for a just-completed
// recurring task and disarms recurrence on the completed one, so each
// instance recurs at most once. The new task carries over text, hashtags,
// urgency and the rule; it inherits no parent or calendar linkage.
func (svc *TasksService) spawnNextOccurrence(ctx context.Context, completed *model.Task) (*model.Task, error) {
	nextDue, ok := NextDueDate(*completed.DueDate, completed.RecurrenceRule)
	if !ok {
		return nil, fmt.Errorf("task %s has no active recurrence rule", completed.TaskID)
	}

	next := svc.newTask(completed.UserID, completed.Text, TaskInput{
		Text:           completed.Text,
		Hashtags:       completed.Hashtags,
		DueDate:        &nextDue,
		IsUrgent:       completed.IsUrgent,
		RecurrenceRule: completed.RecurrenceRule,
	})

	prev := svc.snapshots.get(completed.UserID)
	svc.snapshots.set(completed.UserID, append(cloneTasks(prev), next))

	if err := svc.repo.CreateTask(ctx, next); err != nil {
		svc.snapshots.set(completed.UserID, prev)
		return nil, fmt.Errorf("create next occurrence: %w", err)
	}

	none := model.RecurrenceNone
	if err := svc.applyPatch(ctx, completed.UserID, completed.TaskID, repository.Patch{
		RecurrenceRule: &none,
	}, func(t *model.Task) {
		t.RecurrenceRule = model.RecurrenceNone
	}); err != nil {
		return next, fmt.Errorf("disarm recurrence: %w", err)
	}
	completed.RecurrenceRule = model.RecurrenceNone

	utils.TrackTaskOperation("recurrence_spawn")
	return next, nil
}
