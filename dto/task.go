package dto

import (
	"time"

	"main/model"
)

type CreateTaskRequest struct {
	Text           string               `json:"text" binding:"required"`
	Hashtags       []string             `json:"hashtags" binding:"omitempty,dive,hashtag"`
	DueDate        *time.Time           `json:"due_date"`
	IsUrgent       bool                 `json:"is_urgent"`
	RecurrenceRule model.RecurrenceRule `json:"recurrence_rule" binding:"omitempty,recurrence"`
}

type CreateTasksBatchRequest struct {
	Tasks []CreateTaskRequest `json:"tasks" binding:"required,min=1,dive"`
}

type CreateSubtasksRequest struct {
	Texts []string `json:"texts" binding:"required,min=1"`
}

type UpdateTextRequest struct {
	Text string `json:"text" binding:"required"`
}

type UpdateNoteRequest struct {
	Note string `json:"note"`
}

type UpdateStatusRequest struct {
	Status model.TaskStatus `json:"status" binding:"required"`
}

// UpdateDueDateRequest carries the new due date; null clears it.
type UpdateDueDateRequest struct {
	DueDate *time.Time `json:"due_date"`
}

// ParseTaskRequest carries the raw entry to parse: free text, attached
// media, or both.
type ParseTaskRequest struct {
	Text  string        `json:"text" binding:"required_without=Media"`
	Media []InlineMedia `json:"media" binding:"omitempty,dive"`
}

type TaskResponse struct {
	ID                    string               `json:"id"`
	Text                  string               `json:"text"`
	Status                model.TaskStatus     `json:"status"`
	Hashtags              []string             `json:"hashtags,omitempty"`
	IsUrgent              bool                 `json:"is_urgent"`
	DueDate               *time.Time           `json:"due_date,omitempty"`
	RecurrenceRule        model.RecurrenceRule `json:"recurrence_rule"`
	ReminderSent          bool                 `json:"reminder_sent"`
	ParentID              string               `json:"parent_id,omitempty"`
	Note                  string               `json:"note,omitempty"`
	GoogleCalendarEventID string               `json:"google_calendar_event_id,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
	TimeUntilDue          string               `json:"time_until_due,omitempty"` // computed field
}

// Convert model.Task to TaskResponse
func ToTaskResponse(task *model.Task) TaskResponse {
	response := TaskResponse{
		ID:                    task.TaskID,
		Text:                  task.Text,
		Status:                task.Status,
		Hashtags:              task.Hashtags,
		IsUrgent:              task.IsUrgent,
		DueDate:               task.DueDate,
		RecurrenceRule:        task.RecurrenceRule,
		ReminderSent:          task.ReminderSent,
		ParentID:              task.ParentID,
		Note:                  task.Note,
		GoogleCalendarEventID: task.GoogleCalendarEventID,
		CreatedAt:             task.CreatedAt,
		UpdatedAt:             task.UpdatedAt,
	}

	if task.DueDate != nil && task.Status != model.StatusCompleted {
		if task.DueDate.Before(time.Now()) {
			response.TimeUntilDue = "Overdue"
		} else {
			response.TimeUntilDue = time.Until(*task.DueDate).Round(time.Hour).String()
		}
	}

	return response
}

// Convert slice of model.Task to slice of TaskResponse
func ToTaskResponses(tasks []*model.Task) []TaskResponse {
	responses := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = ToTaskResponse(task)
	}
	return responses
}
