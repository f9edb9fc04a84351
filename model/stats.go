package model

type TaskStats struct {
	// Basic counts
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"inprogress"`
	Completed  int `json:"completed"`

	// Flag based counts
	Urgent    int `json:"urgent"`
	Recurring int `json:"recurring"`
	Subtasks  int `json:"subtasks"`

	// Time based counts
	Overdue  int `json:"overdue"`
	DueToday int `json:"due_today"`
	Upcoming int `json:"upcoming"` // Due in next 7 days

	// Calendar sync state
	SyncedToCalendar int `json:"synced_to_calendar"`

	TagCounts map[string]int `json:"tag_counts"`
}
