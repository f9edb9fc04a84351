package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"main/model"
	"main/repository"
)

// memRepo is an in-memory TaskRepository for exercising the service logic
// without a database.
type memRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.Task

	failCreate bool
	failUpdate bool
	failDelete bool
}

func newMemRepo() *memRepo {
	return &memRepo{tasks: make(map[string]*model.Task)}
}

func (r *memRepo) CreateTask(_ context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errors.New("create failed")
	}
	copied := *task
	r.tasks[task.TaskID] = &copied
	return nil
}

func (r *memRepo) CreateTasks(ctx context.Context, tasks []*model.Task) error {
	for _, task := range tasks {
		if err := r.CreateTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (r *memRepo) GetUserTasks(_ context.Context, userID string) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, task := range r.tasks {
		if task.UserID == userID {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memRepo) GetTaskByID(_ context.Context, userID, taskID string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok || task.UserID != userID {
		return nil, repository.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (r *memRepo) UpdateTask(_ context.Context, userID, taskID string, patch repository.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate {
		return errors.New("update failed")
	}
	task, ok := r.tasks[taskID]
	if !ok || task.UserID != userID {
		return repository.ErrTaskNotFound
	}
	if patch.Text != nil {
		task.Text = *patch.Text
	}
	if patch.Note != nil {
		task.Note = *patch.Note
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.IsUrgent != nil {
		task.IsUrgent = *patch.IsUrgent
	}
	if patch.RecurrenceRule != nil {
		task.RecurrenceRule = *patch.RecurrenceRule
	}
	if patch.ReminderSent != nil {
		task.ReminderSent = *patch.ReminderSent
	}
	if patch.ClearDueDate {
		task.DueDate = nil
	} else if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}
	if patch.ClearCalendarEventID {
		task.GoogleCalendarEventID = ""
	} else if patch.GoogleCalendarEventID != nil {
		task.GoogleCalendarEventID = *patch.GoogleCalendarEventID
	}
	task.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) DeleteTask(_ context.Context, userID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDelete {
		return errors.New("delete failed")
	}
	task, ok := r.tasks[taskID]
	if !ok || task.UserID != userID {
		return repository.ErrTaskNotFound
	}
	delete(r.tasks, taskID)
	return nil
}

func (r *memRepo) DeleteByParent(_ context.Context, userID, parentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDelete {
		return 0, errors.New("delete failed")
	}
	deleted := 0
	for id, task := range r.tasks {
		if task.UserID == userID && task.ParentID == parentID {
			delete(r.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memRepo) CountUserTasks(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, task := range r.tasks {
		if task.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *memRepo) FindScheduled(_ context.Context, userID string, from, to time.Time) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, task := range r.tasks {
		if task.UserID != userID || task.Status == model.StatusCompleted || task.DueDate == nil {
			continue
		}
		if task.DueDate.Before(from) || !task.DueDate.Before(to) {
			continue
		}
		copied := *task
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memRepo) FindByStatus(_ context.Context, userID string, status model.TaskStatus) ([]*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Task
	for _, task := range r.tasks {
		if task.UserID == userID && task.Status == status {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeCalendar records the mirroring calls the service makes.
type fakeCalendar struct {
	mu      sync.Mutex
	nextID  int
	created []string
	updated []string
	deleted []string

	createErr error
	updateErr error
	deleteErr error
}

func (c *fakeCalendar) CreateEvent(_ context.Context, summary, _ string, _ time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.nextID++
	id := fmt.Sprintf("event-%d", c.nextID)
	c.created = append(c.created, summary)
	return id, nil
}

func (c *fakeCalendar) UpdateEvent(_ context.Context, eventID, _, _ string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateErr != nil {
		return c.updateErr
	}
	c.updated = append(c.updated, eventID)
	return nil
}

func (c *fakeCalendar) DeleteEvent(_ context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, eventID)
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }

func TestAddTask(t *testing.T) {
	ctx := context.Background()

	t.Run("creates task with defaults", func(t *testing.T) {
		svc := NewTasksService(newMemRepo(), nil)

		task, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "  buy milk  ", Hashtags: []string{"#Errands"}})
		if err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
		if task == nil {
			t.Fatal("expected a task")
		}
		if task.Text != "buy milk" {
			t.Errorf("expected trimmed text, got %q", task.Text)
		}
		if task.Status != model.StatusTodo {
			t.Errorf("expected status todo, got %q", task.Status)
		}
		if task.TaskID == "" {
			t.Error("expected a generated id")
		}
		if len(task.Hashtags) != 1 || task.Hashtags[0] != "errands" {
			t.Errorf("expected normalized hashtags, got %v", task.Hashtags)
		}
	})

	t.Run("empty text is silently rejected", func(t *testing.T) {
		repo := newMemRepo()
		svc := NewTasksService(repo, nil)

		task, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "   "})
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if task != nil {
			t.Fatal("expected no task for whitespace-only text")
		}
		if count, _ := repo.CountUserTasks(ctx, "user-1"); count != 0 {
			t.Errorf("expected empty store, found %d tasks", count)
		}
	})

	t.Run("due date mirrors to calendar before persisting", func(t *testing.T) {
		cal := &fakeCalendar{}
		svc := NewTasksService(newMemRepo(), cal)

		due := time.Now().Add(24 * time.Hour)
		task, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "dentist", DueDate: timePtr(due)})
		if err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
		if task.GoogleCalendarEventID == "" {
			t.Error("expected a calendar event id")
		}
		if len(cal.created) != 1 {
			t.Errorf("expected one calendar create, got %d", len(cal.created))
		}
	})

	t.Run("calendar failure does not block creation", func(t *testing.T) {
		cal := &fakeCalendar{createErr: errors.New("calendar down")}
		repo := newMemRepo()
		svc := NewTasksService(repo, cal)

		due := time.Now().Add(24 * time.Hour)
		task, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "dentist", DueDate: timePtr(due)})
		if err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
		if task.GoogleCalendarEventID != "" {
			t.Errorf("expected no event id on calendar failure, got %q", task.GoogleCalendarEventID)
		}
		if _, err := repo.GetTaskByID(ctx, "user-1", task.TaskID); err != nil {
			t.Errorf("task should still be persisted: %v", err)
		}
	})

	t.Run("store failure rolls back the optimistic view", func(t *testing.T) {
		repo := newMemRepo()
		svc := NewTasksService(repo, nil)

		if _, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "first"}); err != nil {
			t.Fatalf("seed AddTask failed: %v", err)
		}

		repo.failCreate = true
		if _, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "second"}); err == nil {
			t.Fatal("expected an error from the failed create")
		}

		view := svc.snapshots.get("user-1")
		if len(view) != 1 {
			t.Fatalf("expected rollback to one task, view has %d", len(view))
		}
		if view[0].Text != "first" {
			t.Errorf("expected surviving task %q, got %q", "first", view[0].Text)
		}
	})
}

func TestGuestQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("single adds stop at the quota", func(t *testing.T) {
		svc := NewGuestTasksService(newMemRepo())

		for i := 0; i < GuestTaskQuota; i++ {
			if _, err := svc.AddTask(ctx, "guest-1", TaskInput{Text: fmt.Sprintf("task %d", i)}); err != nil {
				t.Fatalf("AddTask %d failed: %v", i, err)
			}
		}

		_, err := svc.AddTask(ctx, "guest-1", TaskInput{Text: "one too many"})
		if !errors.Is(err, ErrGuestQuotaExceeded) {
			t.Fatalf("expected ErrGuestQuotaExceeded, got %v", err)
		}
	})

	t.Run("batch is truncated to the remaining quota", func(t *testing.T) {
		svc := NewGuestTasksService(newMemRepo())

		if _, err := svc.AddTask(ctx, "guest-1", TaskInput{Text: "existing"}); err != nil {
			t.Fatalf("seed AddTask failed: %v", err)
		}

		inputs := make([]TaskInput, GuestTaskQuota+2)
		for i := range inputs {
			inputs[i] = TaskInput{Text: fmt.Sprintf("batch %d", i)}
		}

		created, err := svc.AddTasksBatch(ctx, "guest-1", inputs)
		if err != nil {
			t.Fatalf("AddTasksBatch failed: %v", err)
		}
		if len(created) != GuestTaskQuota-1 {
			t.Errorf("expected %d created, got %d", GuestTaskQuota-1, len(created))
		}
	})

	t.Run("guest reminder marking is a no-op", func(t *testing.T) {
		svc := NewGuestTasksService(newMemRepo())
		if err := svc.MarkReminderSent(ctx, "guest-1", "missing-task"); err != nil {
			t.Fatalf("expected no error for guest reminder marking, got %v", err)
		}
	})
}

func TestAddSubtasksBatch(t *testing.T) {
	ctx := context.Background()
	svc := NewTasksService(newMemRepo(), nil)

	parent, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "project"})
	if err != nil {
		t.Fatalf("seed AddTask failed: %v", err)
	}

	t.Run("children reference the parent", func(t *testing.T) {
		subtasks, err := svc.AddSubtasksBatch(ctx, "user-1", parent.TaskID, []string{"step one", " ", "step two"})
		if err != nil {
			t.Fatalf("AddSubtasksBatch failed: %v", err)
		}
		if len(subtasks) != 2 {
			t.Fatalf("expected 2 subtasks, got %d", len(subtasks))
		}
		for _, sub := range subtasks {
			if sub.ParentID != parent.TaskID {
				t.Errorf("subtask %q not linked to parent", sub.Text)
			}
			if sub.DueDate != nil || sub.IsUrgent {
				t.Errorf("subtask %q carries due date or urgency", sub.Text)
			}
		}
	})

	t.Run("missing parent is rejected", func(t *testing.T) {
		_, err := svc.AddSubtasksBatch(ctx, "user-1", "no-such-task", []string{"orphan"})
		if !errors.Is(err, repository.ErrTaskNotFound) {
			t.Fatalf("expected ErrTaskNotFound, got %v", err)
		}
	})
}

func TestUpdateTaskText(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	cal := &fakeCalendar{}
	svc := NewTasksService(repo, cal)

	due := time.Now().Add(48 * time.Hour)
	task, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "old name", DueDate: timePtr(due)})
	if err != nil {
		t.Fatalf("seed AddTask failed: %v", err)
	}

	t.Run("rename persists and resyncs the calendar", func(t *testing.T) {
		if err := svc.UpdateTaskText(ctx, "user-1", task.TaskID, "new name"); err != nil {
			t.Fatalf("UpdateTaskText failed: %v", err)
		}
		stored, _ := repo.GetTaskByID(ctx, "user-1", task.TaskID)
		if stored.Text != "new name" {
			t.Errorf("expected stored text %q, got %q", "new name", stored.Text)
		}
		if len(cal.updated) != 1 {
			t.Errorf("expected one calendar update, got %d", len(cal.updated))
		}
	})

	t.Run("unchanged text is a no-op", func(t *testing.T) {
		before := len(cal.updated)
		if err := svc.UpdateTaskText(ctx, "user-1", task.TaskID, "new name"); err != nil {
			t.Fatalf("UpdateTaskText failed: %v", err)
		}
		if len(cal.updated) != before {
			t.Error("no-op rename should not touch the calendar")
		}
	})

	t.Run("empty text is a no-op", func(t *testing.T) {
		if err := svc.UpdateTaskText(ctx, "user-1", task.TaskID, "   "); err != nil {
			t.Fatalf("UpdateTaskText failed: %v", err)
		}
		stored, _ := repo.GetTaskByID(ctx, "user-1", task.TaskID)
		if stored.Text != "new name" {
			t.Errorf("empty rename should keep %q, got %q", "new name", stored.Text)
		}
	})
}

func TestToggleTask(t *testing.T) {
	ctx := context.Background()

	t.Run("flips between completed and todo", func(t *testing.T) {
		repo := newMemRepo()
		svc := NewTasksService(repo, nil)

		task, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "flip me"})
		if err != nil {
			t.Fatalf("seed AddTask failed: %v", err)
		}

		toggled, err := svc.ToggleTask(ctx, "user-1", task.TaskID)
		if err != nil {
			t.Fatalf("ToggleTask failed: %v", err)
		}
		if toggled.Status != model.StatusCompleted {
			t.Errorf("expected completed, got %q", toggled.Status)
		}

		toggled, err = svc.ToggleTask(ctx, "user-1", task.TaskID)
		if err != nil {
			t.Fatalf("second ToggleTask failed: %v", err)
		}
		if toggled.Status != model.StatusTodo {
			t.Errorf("expected todo after second toggle, got %q", toggled.Status)
		}
	})

	t.Run("completing a recurring task spawns the next occurrence once", func(t *testing.T) {
		repo := newMemRepo()
		svc := NewTasksService(repo, nil)

		due := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
		task, err := svc.AddTask(ctx, "user-1", TaskInput{
			Text:           "water plants",
			DueDate:        timePtr(due),
			RecurrenceRule: model.RecurrenceWeekly,
		})
		if err != nil {
			t.Fatalf("seed AddTask failed: %v", err)
		}

		if _, err := svc.ToggleTask(ctx, "user-1", task.TaskID); err != nil {
			t.Fatalf("ToggleTask failed: %v", err)
		}

		all, _ := repo.GetUserTasks(ctx, "user-1")
		if len(all) != 2 {
			t.Fatalf("expected 2 tasks after spawning, got %d", len(all))
		}

		var next *model.Task
		for _, candidate := range all {
			if candidate.TaskID != task.TaskID {
				next = candidate
			}
		}
		if next == nil {
			t.Fatal("next occurrence not found")
		}
		wantDue := due.AddDate(0, 0, 7)
		if next.DueDate == nil || !next.DueDate.Equal(wantDue) {
			t.Errorf("expected next due %v, got %v", wantDue, next.DueDate)
		}
		if next.RecurrenceRule != model.RecurrenceWeekly {
			t.Errorf("next occurrence should keep the rule, got %q", next.RecurrenceRule)
		}

		// The completed instance is disarmed, so re-toggling it twice never
		// spawns a third task.
		stored, _ := repo.GetTaskByID(ctx, "user-1", task.TaskID)
		if stored.RecurrenceRule != model.RecurrenceNone {
			t.Errorf("completed instance should be disarmed, got %q", stored.RecurrenceRule)
		}
		if _, err := svc.ToggleTask(ctx, "user-1", task.TaskID); err != nil {
			t.Fatalf("re-toggle failed: %v", err)
		}
		if _, err := svc.ToggleTask(ctx, "user-1", task.TaskID); err != nil {
			t.Fatalf("re-complete failed: %v", err)
		}
		all, _ = repo.GetUserTasks(ctx, "user-1")
		if len(all) != 2 {
			t.Errorf("expected still 2 tasks, got %d", len(all))
		}
	})
}

func TestUpdateTaskStatus(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewTasksService(repo, nil)

	task, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "board card"})
	if err != nil {
		t.Fatalf("seed AddTask failed: %v", err)
	}

	if err := svc.UpdateTaskStatus(ctx, "user-1", task.TaskID, model.StatusInProgress); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	stored, _ := repo.GetTaskByID(ctx, "user-1", task.TaskID)
	if stored.Status != model.StatusInProgress {
		t.Errorf("expected inprogress, got %q", stored.Status)
	}

	if err := svc.UpdateTaskStatus(ctx, "user-1", task.TaskID, "sideways"); err == nil {
		t.Fatal("expected an error for an unknown status")
	}
}

func TestUpdateTaskDueDate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*TasksService, *memRepo, *fakeCalendar, *model.Task) {
		t.Helper()
		repo := newMemRepo()
		cal := &fakeCalendar{}
		svc := NewTasksService(repo, cal)
		task, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "report"})
		if err != nil {
			t.Fatalf("seed AddTask failed: %v", err)
		}
		return svc, repo, cal, task
	}

	t.Run("setting a date creates the event", func(t *testing.T) {
		svc, repo, cal, task := setup(t)
		due := time.Now().Add(24 * time.Hour)

		if err := svc.UpdateTaskDueDate(ctx, "user-1", task.TaskID, timePtr(due)); err != nil {
			t.Fatalf("UpdateTaskDueDate failed: %v", err)
		}
		stored, _ := repo.GetTaskByID(ctx, "user-1", task.TaskID)
		if stored.DueDate == nil || !stored.DueDate.Equal(due) {
			t.Errorf("expected due %v, got %v", due, stored.DueDate)
		}
		if stored.GoogleCalendarEventID == "" {
			t.Error("expected a calendar event id after setting a date")
		}
		if len(cal.created) != 1 {
			t.Errorf("expected one calendar create, got %d", len(cal.created))
		}
	})

	t.Run("changing a date updates the existing event", func(t *testing.T) {
		svc, repo, cal, task := setup(t)
		first := time.Now().Add(24 * time.Hour)
		second := first.Add(48 * time.Hour)

		if err := svc.UpdateTaskDueDate(ctx, "user-1", task.TaskID, timePtr(first)); err != nil {
			t.Fatalf("first UpdateTaskDueDate failed: %v", err)
		}
		if err := svc.UpdateTaskDueDate(ctx, "user-1", task.TaskID, timePtr(second)); err != nil {
			t.Fatalf("second UpdateTaskDueDate failed: %v", err)
		}
		if len(cal.created) != 1 || len(cal.updated) != 1 {
			t.Errorf("expected one create and one update, got %d/%d", len(cal.created), len(cal.updated))
		}
		stored, _ := repo.GetTaskByID(ctx, "user-1", task.TaskID)
		if stored.DueDate == nil || !stored.DueDate.Equal(second) {
			t.Errorf("expected due %v, got %v", second, stored.DueDate)
		}
	})

	t.Run("clearing the date deletes the event and disarms recurrence", func(t *testing.T) {
		repo := newMemRepo()
		cal := &fakeCalendar{}
		svc := NewTasksService(repo, cal)
		due := time.Now().Add(24 * time.Hour)
		task, err := svc.AddTask(ctx, "user-1", TaskInput{
			Text:           "standup",
			DueDate:        timePtr(due),
			RecurrenceRule: model.RecurrenceDaily,
		})
		if err != nil {
			t.Fatalf("seed AddTask failed: %v", err)
		}

		if err := svc.UpdateTaskDueDate(ctx, "user-1", task.TaskID, nil); err != nil {
			t.Fatalf("UpdateTaskDueDate failed: %v", err)
		}
		stored, _ := repo.GetTaskByID(ctx, "user-1", task.TaskID)
		if stored.DueDate != nil {
			t.Error("expected due date cleared")
		}
		if stored.GoogleCalendarEventID != "" {
			t.Error("expected calendar event id cleared")
		}
		if stored.RecurrenceRule != model.RecurrenceNone {
			t.Errorf("expected recurrence disarmed, got %q", stored.RecurrenceRule)
		}
		if len(cal.deleted) != 1 {
			t.Errorf("expected one calendar delete, got %d", len(cal.deleted))
		}
	})

	t.Run("any change resets the reminder flag", func(t *testing.T) {
		svc, repo, _, task := setup(t)
		due := time.Now().Add(-time.Hour)
		if err := svc.UpdateTaskDueDate(ctx, "user-1", task.TaskID, timePtr(due)); err != nil {
			t.Fatalf("UpdateTaskDueDate failed: %v", err)
		}
		if err := svc.MarkReminderSent(ctx, "user-1", task.TaskID); err != nil {
			t.Fatalf("MarkReminderSent failed: %v", err)
		}

		newDue := time.Now().Add(time.Hour)
		if err := svc.UpdateTaskDueDate(ctx, "user-1", task.TaskID, timePtr(newDue)); err != nil {
			t.Fatalf("second UpdateTaskDueDate failed: %v", err)
		}
		stored, _ := repo.GetTaskByID(ctx, "user-1", task.TaskID)
		if stored.ReminderSent {
			t.Error("expected reminder flag reset after due date change")
		}
	})

	t.Run("clearing an unset date is a no-op", func(t *testing.T) {
		svc, _, cal, task := setup(t)
		if err := svc.UpdateTaskDueDate(ctx, "user-1", task.TaskID, nil); err != nil {
			t.Fatalf("UpdateTaskDueDate failed: %v", err)
		}
		if len(cal.deleted) != 0 {
			t.Errorf("expected no calendar calls, got %d deletes", len(cal.deleted))
		}
	})
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	cal := &fakeCalendar{}
	svc := NewTasksService(repo, cal)

	due := time.Now().Add(24 * time.Hour)
	parent, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "parent", DueDate: timePtr(due)})
	if err != nil {
		t.Fatalf("seed AddTask failed: %v", err)
	}
	if _, err := svc.AddSubtasksBatch(ctx, "user-1", parent.TaskID, []string{"child a", "child b"}); err != nil {
		t.Fatalf("seed AddSubtasksBatch failed: %v", err)
	}
	keeper, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "unrelated"})
	if err != nil {
		t.Fatalf("seed AddTask failed: %v", err)
	}

	if err := svc.DeleteTask(ctx, "user-1", parent.TaskID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	remaining, _ := repo.GetUserTasks(ctx, "user-1")
	if len(remaining) != 1 {
		t.Fatalf("expected only the unrelated task to survive, got %d", len(remaining))
	}
	if remaining[0].TaskID != keeper.TaskID {
		t.Errorf("wrong survivor: %q", remaining[0].Text)
	}
	if len(cal.deleted) != 1 {
		t.Errorf("expected one calendar delete, got %d", len(cal.deleted))
	}
}

func TestGetUserTasksOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewTasksService(repo, nil)

	soon := time.Now().Add(time.Hour)
	later := time.Now().Add(48 * time.Hour)

	done, _ := svc.AddTask(ctx, "user-1", TaskInput{Text: "done", DueDate: timePtr(soon)})
	if _, err := svc.ToggleTask(ctx, "user-1", done.TaskID); err != nil {
		t.Fatalf("ToggleTask failed: %v", err)
	}
	if _, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "later", DueDate: timePtr(later)}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if _, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "soon", DueDate: timePtr(soon)}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if _, err := svc.AddTask(ctx, "user-1", TaskInput{Text: "undated"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	tasks, err := svc.GetUserTasks(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUserTasks failed: %v", err)
	}
	got := make([]string, len(tasks))
	for i, task := range tasks {
		got[i] = task.Text
	}

	want := []string{"soon", "later", "undated", "done"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestSyncExistingTasksToCalendar(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewTasksService(repo, nil) // no calendar yet

	due := time.Now().Add(24 * time.Hour)
	withDue, _ := svc.AddTask(ctx, "user-1", TaskInput{Text: "dated", DueDate: timePtr(due)})
	svc.AddTask(ctx, "user-1", TaskInput{Text: "undated"})

	cal := &fakeCalendar{}
	svc.calendar = cal

	synced, err := svc.SyncExistingTasksToCalendar(ctx, "user-1")
	if err != nil {
		t.Fatalf("SyncExistingTasksToCalendar failed: %v", err)
	}
	if synced != 1 {
		t.Fatalf("expected 1 synced, got %d", synced)
	}
	stored, _ := repo.GetTaskByID(ctx, "user-1", withDue.TaskID)
	if stored.GoogleCalendarEventID == "" {
		t.Error("expected backfilled event id")
	}

	// Re-running is idempotent: the correlated task is skipped.
	synced, err = svc.SyncExistingTasksToCalendar(ctx, "user-1")
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if synced != 0 {
		t.Errorf("expected 0 on re-sync, got %d", synced)
	}
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	svc := NewTasksService(newMemRepo(), nil)

	overdue := time.Now().Add(-2 * time.Hour)
	svc.AddTask(ctx, "user-1", TaskInput{Text: "late", DueDate: timePtr(overdue), IsUrgent: true, Hashtags: []string{"work"}})
	svc.AddTask(ctx, "user-1", TaskInput{Text: "open", Hashtags: []string{"work", "home"}})
	done, _ := svc.AddTask(ctx, "user-1", TaskInput{Text: "finished"})
	svc.ToggleTask(ctx, "user-1", done.TaskID)

	stats, err := svc.GetStats(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
	if stats.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", stats.Completed)
	}
	if stats.Urgent != 1 {
		t.Errorf("expected 1 urgent, got %d", stats.Urgent)
	}
	if stats.Overdue != 1 {
		t.Errorf("expected 1 overdue, got %d", stats.Overdue)
	}
	if stats.TagCounts["work"] != 2 {
		t.Errorf("expected tag work counted twice, got %d", stats.TagCounts["work"])
	}
}

func TestStatsWindowsUseUTCDay(t *testing.T) {
	// 00:30 on May 1st in UTC+13 is still April 30th in UTC; the windows
	// must follow the UTC calendar date, not the host's.
	local := time.Date(2026, 5, 1, 0, 30, 0, 0, time.FixedZone("UTC+13", 13*3600))

	today, tomorrow, weekOut := statsWindows(local)
	if want := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC); !today.Equal(want) {
		t.Errorf("expected today %v, got %v", want, today)
	}
	if want := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC); !tomorrow.Equal(want) {
		t.Errorf("expected tomorrow %v, got %v", want, tomorrow)
	}
	if want := time.Date(2026, 5, 7, 0, 0, 0, 0, time.UTC); !weekOut.Equal(want) {
		t.Errorf("expected week boundary %v, got %v", want, weekOut)
	}
}
