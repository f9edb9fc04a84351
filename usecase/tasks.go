package usecase

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"main/model"
	"main/repository"
	"main/utils"

	"github.com/google/uuid"
)

// GuestTaskQuota caps the guest-mode collection. Guest mode is single-device,
// so a plain length check at the point of each add is sufficient.
const GuestTaskQuota = 5

var ErrGuestQuotaExceeded = errors.New("guest mode is limited to 5 tasks")

// CalendarSync is the advisory mirroring contract. A nil CalendarSync (guest
// mode, or no credential) disables mirroring entirely.
type CalendarSync interface {
	CreateEvent(ctx context.Context, summary, description string, due time.Time) (string, error)
	UpdateEvent(ctx context.Context, eventID, summary, description string, due time.Time) error
	DeleteEvent(ctx context.Context, eventID string) error
}

// TaskInput carries the fields of one task in an add or batch-add call.
type TaskInput struct {
	Text           string
	Hashtags       []string
	DueDate        *time.Time
	IsUrgent       bool
	RecurrenceRule model.RecurrenceRule
}

// TasksService is the single source of truth for a user's tasks. It keeps an
// optimistic in-memory view per user: mutations apply to the view first,
// then commit to the durable store, and restore the last committed snapshot
// if the commit fails.
type TasksService struct {
	repo     repository.TaskRepository
	calendar CalendarSync
	guest    bool
	scanner  *ReminderScanner

	snapshots snapshotStore
	locks     keyedMutex
}

func NewTasksService(repo repository.TaskRepository, calendar CalendarSync) *TasksService {
	return &TasksService{
		repo:     repo,
		calendar: calendar,
		snapshots: snapshotStore{
			byUser: make(map[string][]*model.Task),
		},
		locks: keyedMutex{locks: make(map[string]*sync.Mutex)},
	}
}

// NewGuestTasksService builds the quota-limited, offline variant. Guest mode
// never talks to the calendar and never feeds the reminder scanner.
func NewGuestTasksService(repo repository.TaskRepository) *TasksService {
	svc := NewTasksService(repo, nil)
	svc.guest = true
	return svc
}

// AttachScanner makes the service push a fresh snapshot to the reminder
// scanner after every successful mutation.
func (svc *TasksService) AttachScanner(scanner *ReminderScanner) {
	svc.scanner = scanner
}

// GetUserTasks returns the current view, incomplete tasks first, then by due
// date, then newest first.
func (svc *TasksService) GetUserTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	tasks, err := svc.refresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Reads feed the reminder scanner too, so a user who never mutates
	// anything still gets reminders for tasks that were already overdue.
	svc.pushSnapshot(userID)

	sort.SliceStable(tasks, func(i, j int) bool {
		if (tasks[i].Status == model.StatusCompleted) != (tasks[j].Status == model.StatusCompleted) {
			return tasks[i].Status != model.StatusCompleted
		}
		switch {
		case tasks[i].DueDate == nil && tasks[j].DueDate == nil:
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		case tasks[i].DueDate == nil:
			return false
		case tasks[j].DueDate == nil:
			return true
		default:
			return tasks[i].DueDate.Before(*tasks[j].DueDate)
		}
	})

	return tasks, nil
}

// AddTask creates a single task. Empty text is silently rejected. When a due
// date is given, the calendar create is attempted first; its failure is
// advisory and the task is still created, just without a correlation id.
func (svc *TasksService) AddTask(ctx context.Context, userID string, input TaskInput) (*model.Task, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, nil
	}

	if svc.guest {
		count, err := svc.repo.CountUserTasks(ctx, userID)
		if err != nil {
			return nil, err
		}
		if count >= GuestTaskQuota {
			return nil, ErrGuestQuotaExceeded
		}
	}

	task := svc.newTask(userID, text, input)

	if task.DueDate != nil && svc.calendar != nil {
		eventID, err := svc.calendar.CreateEvent(ctx, task.Text, task.Note, *task.DueDate)
		if err != nil {
			log.Printf("calendar create failed for new task: %v", err)
		} else {
			task.GoogleCalendarEventID = eventID
		}
	}

	prev := svc.snapshots.get(userID)
	svc.snapshots.set(userID, append(cloneTasks(prev), task))

	if err := svc.repo.CreateTask(ctx, task); err != nil {
		svc.snapshots.set(userID, prev)
		return nil, err
	}

	utils.TrackTaskOperation("create")
	svc.pushSnapshot(userID)
	return task, nil
}

// AddTasksBatch applies the per-item add rules and persists the survivors as
// one durable write. Guest mode truncates the combined result to the quota.
func (svc *TasksService) AddTasksBatch(ctx context.Context, userID string, inputs []TaskInput) ([]*model.Task, error) {
	var tasks []*model.Task
	for _, input := range inputs {
		text := strings.TrimSpace(input.Text)
		if text == "" {
			continue
		}
		input.Text = text
		tasks = append(tasks, svc.newTask(userID, text, input))
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	tasks, err := svc.truncateToQuota(ctx, userID, tasks)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrGuestQuotaExceeded
	}

	if svc.calendar != nil {
		for _, task := range tasks {
			if task.DueDate == nil {
				continue
			}
			eventID, err := svc.calendar.CreateEvent(ctx, task.Text, task.Note, *task.DueDate)
			if err != nil {
				log.Printf("calendar create failed for batch task: %v", err)
				continue
			}
			task.GoogleCalendarEventID = eventID
		}
	}

	prev := svc.snapshots.get(userID)
	svc.snapshots.set(userID, append(cloneTasks(prev), tasks...))

	if err := svc.repo.CreateTasks(ctx, tasks); err != nil {
		svc.snapshots.set(userID, prev)
		return nil, err
	}

	utils.TrackTaskOperation("create_batch")
	svc.pushSnapshot(userID)
	return tasks, nil
}

// AddSubtasksBatch creates child tasks under a parent: no due date, no
// urgency, no recurrence.
func (svc *TasksService) AddSubtasksBatch(ctx context.Context, userID, parentID string, texts []string) ([]*model.Task, error) {
	if _, err := svc.repo.GetTaskByID(ctx, userID, parentID); err != nil {
		return nil, err
	}

	var tasks []*model.Task
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		task := svc.newTask(userID, text, TaskInput{Text: text})
		task.ParentID = parentID
		tasks = append(tasks, task)
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	tasks, err := svc.truncateToQuota(ctx, userID, tasks)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrGuestQuotaExceeded
	}

	prev := svc.snapshots.get(userID)
	svc.snapshots.set(userID, append(cloneTasks(prev), tasks...))

	if err := svc.repo.CreateTasks(ctx, tasks); err != nil {
		svc.snapshots.set(userID, prev)
		return nil, err
	}

	utils.TrackTaskOperation("create_subtasks")
	svc.pushSnapshot(userID)
	return tasks, nil
}

// UpdateTaskText renames a task. Empty or unchanged text is a no-op, so an
// idempotent call never touches the store or the calendar.
func (svc *TasksService) UpdateTaskText(ctx context.Context, userID, taskID, newText string) error {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return nil
	}

	unlock := svc.locks.lock(taskID)
	defer unlock()

	task, err := svc.repo.GetTaskByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Text == newText {
		return nil
	}

	if err := svc.applyPatch(ctx, userID, taskID, repository.Patch{Text: &newText}, func(t *model.Task) {
		t.Text = newText
	}); err != nil {
		return err
	}

	utils.TrackTaskOperation("update_text")
	svc.resyncCalendar(ctx, task, newText, task.Note)
	svc.pushSnapshot(userID)
	return nil
}

// UpdateTaskNote follows the same optimistic shape as the text update.
func (svc *TasksService) UpdateTaskNote(ctx context.Context, userID, taskID, newNote string) error {
	unlock := svc.locks.lock(taskID)
	defer unlock()

	task, err := svc.repo.GetTaskByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Note == newNote {
		return nil
	}

	if err := svc.applyPatch(ctx, userID, taskID, repository.Patch{Note: &newNote}, func(t *model.Task) {
		t.Note = newNote
	}); err != nil {
		return err
	}

	utils.TrackTaskOperation("update_note")
	svc.resyncCalendar(ctx, task, task.Text, newNote)
	svc.pushSnapshot(userID)
	return nil
}

// ToggleTask flips completion. Completing a recurring task spawns the next
// occurrence and disarms recurrence on the completed instance, so later
// toggles of the same task never fire it again.
func (svc *TasksService) ToggleTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	unlock := svc.locks.lock(taskID)
	defer unlock()

	task, err := svc.repo.GetTaskByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	newStatus := model.StatusCompleted
	if task.Status == model.StatusCompleted {
		newStatus = model.StatusTodo
	}

	if err := svc.applyPatch(ctx, userID, taskID, repository.Patch{Status: &newStatus}, func(t *model.Task) {
		t.Status = newStatus
	}); err != nil {
		return nil, err
	}
	task.Status = newStatus
	utils.TrackTaskOperation("toggle")

	if newStatus == model.StatusCompleted && task.RecurrenceRule != model.RecurrenceNone && task.DueDate != nil {
		if _, err := svc.spawnNextOccurrence(ctx, task); err != nil {
			log.Printf("failed to spawn next occurrence for recurring task: %v", err)
		}
	}

	svc.pushSnapshot(userID)
	return task, nil
}

// UpdateTaskStatus sets the status directly (kanban-style moves).
func (svc *TasksService) UpdateTaskStatus(ctx context.Context, userID, taskID string, status model.TaskStatus) error {
	if !model.ValidTaskStatus(status) {
		return errors.New("invalid task status")
	}

	unlock := svc.locks.lock(taskID)
	defer unlock()

	task, err := svc.repo.GetTaskByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Status == status {
		return nil
	}

	if err := svc.applyPatch(ctx, userID, taskID, repository.Patch{Status: &status}, func(t *model.Task) {
		t.Status = status
	}); err != nil {
		return err
	}

	utils.TrackTaskOperation("update_status")
	svc.resyncCalendar(ctx, task, task.Text, task.Note)
	svc.pushSnapshot(userID)
	return nil
}

// ToggleTaskUrgency flips the urgency flag; no calendar interaction.
func (svc *TasksService) ToggleTaskUrgency(ctx context.Context, userID, taskID string) error {
	unlock := svc.locks.lock(taskID)
	defer unlock()

	task, err := svc.repo.GetTaskByID(ctx, userID, taskID)
	if err != nil {
		return err
	}

	newUrgent := !task.IsUrgent
	if err := svc.applyPatch(ctx, userID, taskID, repository.Patch{IsUrgent: &newUrgent}, func(t *model.Task) {
		t.IsUrgent = newUrgent
	}); err != nil {
		return err
	}

	utils.TrackTaskOperation("toggle_urgency")
	svc.pushSnapshot(userID)
	return nil
}

// UpdateTaskDueDate is the central due-date mutation. The calendar lifecycle
// follows the (dueDate, eventID) pair: create when a date appears, update
// when it changes, delete when it is cleared. Calendar failures never block
// the mutation; ReminderSent always resets.
func (svc *TasksService) UpdateTaskDueDate(ctx context.Context, userID, taskID string, newDueDate *time.Time) error {
	unlock := svc.locks.lock(taskID)
	defer unlock()

	task, err := svc.repo.GetTaskByID(ctx, userID, taskID)
	if err != nil {
		return err
	}

	if task.DueDate == nil && newDueDate == nil {
		return nil
	}

	reminderReset := false
	patch := repository.Patch{ReminderSent: &reminderReset}

	switch {
	case newDueDate == nil:
		// Cleared: drop the mirrored event and the correlation id, and
		// disarm recurrence, which is meaningless without a date.
		if task.GoogleCalendarEventID != "" && svc.calendar != nil {
			if err := svc.calendar.DeleteEvent(ctx, task.GoogleCalendarEventID); err != nil {
				log.Printf("calendar delete failed: %v", err)
			}
		}
		patch.ClearDueDate = true
		patch.ClearCalendarEventID = true
		none := model.RecurrenceNone
		patch.RecurrenceRule = &none

	case task.GoogleCalendarEventID != "":
		// Changed with an existing event: update in place.
		if svc.calendar != nil {
			if err := svc.calendar.UpdateEvent(ctx, task.GoogleCalendarEventID, task.Text, task.Note, *newDueDate); err != nil {
				log.Printf("calendar update failed: %v", err)
			}
		}
		patch.DueDate = newDueDate

	default:
		// Set with no event yet: attempt a create and keep the id only on
		// confirmed success.
		patch.DueDate = newDueDate
		if svc.calendar != nil {
			eventID, err := svc.calendar.CreateEvent(ctx, task.Text, task.Note, *newDueDate)
			if err != nil {
				log.Printf("calendar create failed: %v", err)
			} else {
				patch.GoogleCalendarEventID = &eventID
			}
		}
	}

	if err := svc.applyPatch(ctx, userID, taskID, patch, func(t *model.Task) {
		t.ReminderSent = false
		if patch.ClearDueDate {
			t.DueDate = nil
			t.GoogleCalendarEventID = ""
			t.RecurrenceRule = model.RecurrenceNone
		} else {
			t.DueDate = newDueDate
			if patch.GoogleCalendarEventID != nil {
				t.GoogleCalendarEventID = *patch.GoogleCalendarEventID
			}
		}
	}); err != nil {
		return err
	}

	utils.TrackTaskOperation("update_due_date")
	svc.pushSnapshot(userID)
	return nil
}

// DeleteTask removes a task and every subtask referencing it. The store has
// no cascade of its own.
func (svc *TasksService) DeleteTask(ctx context.Context, userID, taskID string) error {
	unlock := svc.locks.lock(taskID)
	defer unlock()

	task, err := svc.repo.GetTaskByID(ctx, userID, taskID)
	if err != nil {
		return err
	}

	if task.GoogleCalendarEventID != "" && svc.calendar != nil {
		if err := svc.calendar.DeleteEvent(ctx, task.GoogleCalendarEventID); err != nil {
			log.Printf("calendar delete failed for task being removed: %v", err)
		}
	}

	prev := svc.snapshots.get(userID)
	next := make([]*model.Task, 0, len(prev))
	for _, t := range cloneTasks(prev) {
		if t.TaskID == taskID || t.ParentID == taskID {
			continue
		}
		next = append(next, t)
	}
	svc.snapshots.set(userID, next)

	if _, err := svc.repo.DeleteByParent(ctx, userID, taskID); err != nil {
		svc.snapshots.set(userID, prev)
		return err
	}
	if err := svc.repo.DeleteTask(ctx, userID, taskID); err != nil {
		svc.snapshots.set(userID, prev)
		return err
	}

	utils.TrackTaskOperation("delete")
	svc.pushSnapshot(userID)
	return nil
}

// MarkReminderSent records that the overdue notification fired. Reminders
// are an online-only feature, so guest mode is a no-op.
func (svc *TasksService) MarkReminderSent(ctx context.Context, userID, taskID string) error {
	if svc.guest {
		return nil
	}

	unlock := svc.locks.lock(taskID)
	defer unlock()

	sent := true
	if err := svc.applyPatch(ctx, userID, taskID, repository.Patch{ReminderSent: &sent}, func(t *model.Task) {
		t.ReminderSent = true
	}); err != nil {
		return err
	}

	svc.pushSnapshot(userID)
	return nil
}

// SyncExistingTasksToCalendar backfills calendar events for every task with
// a due date but no correlation id. Individual failures are logged and
// skipped; the aggregate success count is returned.
func (svc *TasksService) SyncExistingTasksToCalendar(ctx context.Context, userID string) (int, error) {
	if svc.calendar == nil {
		return 0, nil
	}

	tasks, err := svc.refresh(ctx, userID)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, task := range tasks {
		if task.DueDate == nil || task.GoogleCalendarEventID != "" {
			continue
		}

		eventID, err := svc.calendar.CreateEvent(ctx, task.Text, task.Note, *task.DueDate)
		if err != nil {
			log.Printf("calendar backfill failed for task %s: %v", task.TaskID, err)
			continue
		}

		if err := svc.repo.UpdateTask(ctx, userID, task.TaskID, repository.Patch{
			GoogleCalendarEventID: &eventID,
		}); err != nil {
			log.Printf("failed to persist calendar id for task %s: %v", task.TaskID, err)
			continue
		}
		synced++
	}

	if synced > 0 {
		if _, err := svc.refresh(ctx, userID); err == nil {
			svc.pushSnapshot(userID)
		}
	}
	return synced, nil
}

// ListScheduled returns non-completed tasks due inside [from, to), ordered
// by due time.
func (svc *TasksService) ListScheduled(ctx context.Context, userID string, from, to time.Time) ([]*model.Task, error) {
	return svc.repo.FindScheduled(ctx, userID, from, to)
}

// ListByStatus returns the user's tasks matching a status.
func (svc *TasksService) ListByStatus(ctx context.Context, userID string, status model.TaskStatus) ([]*model.Task, error) {
	return svc.repo.FindByStatus(ctx, userID, status)
}

// GetStats computes the dashboard counters from the current view.
func (svc *TasksService) GetStats(ctx context.Context, userID string) (*model.TaskStats, error) {
	tasks, err := svc.refresh(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, tomorrow, weekOut := statsWindows(now)

	stats := &model.TaskStats{TagCounts: make(map[string]int)}
	for _, task := range tasks {
		stats.Total++
		switch task.Status {
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusInProgress:
			stats.InProgress++
		default:
			stats.Todo++
		}
		if task.IsUrgent {
			stats.Urgent++
		}
		if task.RecurrenceRule != model.RecurrenceNone {
			stats.Recurring++
		}
		if task.ParentID != "" {
			stats.Subtasks++
		}
		if task.GoogleCalendarEventID != "" {
			stats.SyncedToCalendar++
		}
		for _, tag := range task.Hashtags {
			stats.TagCounts[tag]++
		}
		if task.DueDate == nil || task.Status == model.StatusCompleted {
			continue
		}
		switch {
		case task.DueDate.Before(now):
			stats.Overdue++
		case task.DueDate.Before(tomorrow):
			stats.DueToday++
		case task.DueDate.Before(weekOut):
			stats.Upcoming++
		}
	}
	return stats, nil
}

// helper functions

// statsWindows resolves the dashboard's day boundaries from the UTC calendar
// date, so counters agree across hosts regardless of their local timezone.
func statsWindows(now time.Time) (today, tomorrow, weekOut time.Time) {
	now = now.UTC()
	today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today, today.AddDate(0, 0, 1), today.AddDate(0, 0, 7)
}

func (svc *TasksService) newTask(userID, text string, input TaskInput) *model.Task {
	now := time.Now()
	task := &model.Task{
		TaskID:         uuid.New().String(),
		UserID:         userID,
		Text:           text,
		Status:         model.StatusTodo,
		Hashtags:       input.Hashtags,
		DueDate:        input.DueDate,
		IsUrgent:       input.IsUrgent,
		RecurrenceRule: input.RecurrenceRule,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	task.Normalize()
	return task
}

// truncateToQuota trims a batch so the stored count never exceeds the guest
// quota. Authenticated mode passes batches through untouched.
func (svc *TasksService) truncateToQuota(ctx context.Context, userID string, tasks []*model.Task) ([]*model.Task, error) {
	if !svc.guest {
		return tasks, nil
	}
	count, err := svc.repo.CountUserTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	remaining := GuestTaskQuota - count
	if remaining <= 0 {
		return nil, nil
	}
	if len(tasks) > remaining {
		tasks = tasks[:remaining]
	}
	return tasks, nil
}

// applyPatch is the two-phase optimistic commit: mutate a candidate view,
// attempt the durable write, restore the last committed snapshot on failure.
func (svc *TasksService) applyPatch(ctx context.Context, userID, taskID string, patch repository.Patch, mutate func(*model.Task)) error {
	prev := svc.snapshots.get(userID)
	next := cloneTasks(prev)
	for _, t := range next {
		if t.TaskID == taskID {
			mutate(t)
			t.UpdatedAt = time.Now()
			break
		}
	}
	svc.snapshots.set(userID, next)

	if err := svc.repo.UpdateTask(ctx, userID, taskID, patch); err != nil {
		svc.snapshots.set(userID, prev)
		return err
	}
	return nil
}

// resyncCalendar refreshes the mirrored event after a content mutation on a
// task that has a due date and a confirmed event. Best-effort only.
func (svc *TasksService) resyncCalendar(ctx context.Context, task *model.Task, text, note string) {
	if task.DueDate == nil || task.GoogleCalendarEventID == "" || svc.calendar == nil {
		return
	}
	if err := svc.calendar.UpdateEvent(ctx, task.GoogleCalendarEventID, text, note, *task.DueDate); err != nil {
		log.Printf("calendar resync failed: %v", err)
	}
}

// refresh reloads the committed snapshot from the durable store.
func (svc *TasksService) refresh(ctx context.Context, userID string) ([]*model.Task, error) {
	tasks, err := svc.repo.GetUserTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	svc.snapshots.set(userID, tasks)
	return cloneTasks(tasks), nil
}

func (svc *TasksService) pushSnapshot(userID string) {
	if svc.scanner == nil {
		return
	}
	svc.scanner.Push(userID, svc.snapshots.get(userID))
}

// snapshotStore holds the last known-good view per user. Values are treated
// as immutable; mutations always go through a cloned candidate.
type snapshotStore struct {
	mu     sync.RWMutex
	byUser map[string][]*model.Task
}

func (s *snapshotStore) get(userID string) []*model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byUser[userID]
}

func (s *snapshotStore) set(userID string, tasks []*model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = tasks
}

func cloneTasks(tasks []*model.Task) []*model.Task {
	cloned := make([]*model.Task, len(tasks))
	for i, t := range tasks {
		copied := *t
		cloned[i] = &copied
	}
	return cloned
}

// keyedMutex serializes mutations per task id. The backing store is
// last-write-wins, so concurrent call-sites against one task are ordered
// here instead of trusting caller discipline.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
