package model

import (
	"strings"
	"time"
)

type TaskStatus string
type RecurrenceRule string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "inprogress"
	StatusCompleted  TaskStatus = "completed"

	RecurrenceNone    RecurrenceRule = "none"
	RecurrenceDaily   RecurrenceRule = "daily"
	RecurrenceWeekly  RecurrenceRule = "weekly"
	RecurrenceMonthly RecurrenceRule = "monthly"
)

type Task struct {
	TaskID                string         `bson:"_id,omitempty" json:"id"`
	UserID                string         `bson:"user_id" json:"user_id"`
	Text                  string         `bson:"text" json:"text" binding:"required"`
	Status                TaskStatus     `bson:"status" json:"status"`
	Complete              bool           `bson:"complete,omitempty" json:"-"` // legacy field, normalized into Status on read
	CreatedAt             time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `bson:"updated_at" json:"updated_at"`
	DueDate               *time.Time     `bson:"due_date,omitempty" json:"due_date,omitempty"`
	Hashtags              []string       `bson:"hashtags,omitempty" json:"hashtags,omitempty"`
	IsUrgent              bool           `bson:"is_urgent,omitempty" json:"is_urgent"`
	RecurrenceRule        RecurrenceRule `bson:"recurrence_rule,omitempty" json:"recurrence_rule"`
	ReminderSent          bool           `bson:"reminder_sent,omitempty" json:"reminder_sent"`
	ParentID              string         `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Note                  string         `bson:"note,omitempty" json:"note,omitempty"`
	GoogleCalendarEventID string         `bson:"google_calendar_event_id,omitempty" json:"google_calendar_event_id,omitempty"`
	ProjectID             string         `bson:"project_id,omitempty" json:"project_id,omitempty"`
	AssigneeIDs           []string       `bson:"assignee_ids,omitempty" json:"assignee_ids,omitempty"`
}

// Normalize reconciles documents written by older clients into the current
// shape: the legacy completed boolean becomes a status, hashtags are
// lowercased, and a recurrence rule without a due date is disarmed.
func (t *Task) Normalize() {
	if t.Status == "" {
		if t.Complete {
			t.Status = StatusCompleted
		} else {
			t.Status = StatusTodo
		}
	}
	if t.RecurrenceRule == "" {
		t.RecurrenceRule = RecurrenceNone
	}
	if t.DueDate == nil && t.RecurrenceRule != RecurrenceNone {
		t.RecurrenceRule = RecurrenceNone
	}
	for i, tag := range t.Hashtags {
		t.Hashtags[i] = strings.ToLower(strings.TrimPrefix(tag, "#"))
	}
}

func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// IsOverdue reports whether the task qualifies for a reminder at the given
// instant. Completed and already-reminded tasks never qualify.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status != StatusCompleted &&
		!t.ReminderSent &&
		t.DueDate != nil &&
		t.DueDate.Before(now)
}

func ValidRecurrenceRule(rule RecurrenceRule) bool {
	switch rule {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

func ValidTaskStatus(status TaskStatus) bool {
	switch status {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}
