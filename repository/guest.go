package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"main/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// guestTask is the SQLite row shape for guest-mode tasks. Guest mode is
// single-device and offline, so the calendar correlation id is never set.
type guestTask struct {
	TaskID         string `gorm:"primaryKey"`
	UserID         string `gorm:"index"`
	Text           string
	Status         string
	DueDate        *time.Time
	Hashtags       string // comma-joined, tags never contain commas
	IsUrgent       bool   `gorm:"default:false"`
	RecurrenceRule string
	ReminderSent   bool `gorm:"default:false"`
	ParentID       string
	Note           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GuestTasksRepo is the local persistent store backing guest mode.
type GuestTasksRepo struct {
	db *gorm.DB
}

// NewGuestDB opens the guest-mode SQLite database and runs migrations.
func NewGuestDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "guest_tasks.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("open guest db: %w", err)
	}

	if err := db.AutoMigrate(&guestTask{}); err != nil {
		return nil, fmt.Errorf("migrate guest db: %w", err)
	}

	return db, nil
}

func NewGuestTasksRepo(db *gorm.DB) *GuestTasksRepo {
	return &GuestTasksRepo{db: db}
}

func (r *GuestTasksRepo) CreateTask(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(toGuestTask(task)).Error; err != nil {
		return fmt.Errorf("create guest task: %w", err)
	}
	return nil
}

func (r *GuestTasksRepo) CreateTasks(ctx context.Context, tasks []*model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	rows := make([]guestTask, len(tasks))
	for i, task := range tasks {
		rows[i] = *toGuestTask(task)
	}
	// Single transaction, whole batch or nothing.
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("create guest tasks: %w", err)
	}
	return nil
}

func (r *GuestTasksRepo) GetUserTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	var rows []guestTask
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list guest tasks: %w", err)
	}
	return fromGuestTasks(rows), nil
}

func (r *GuestTasksRepo) GetTaskByID(ctx context.Context, userID, taskID string) (*model.Task, error) {
	var row guestTask
	err := r.db.WithContext(ctx).Where("user_id = ? AND task_id = ?", userID, taskID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("find guest task: %w", err)
	}
	return fromGuestTask(row), nil
}

func (r *GuestTasksRepo) UpdateTask(ctx context.Context, userID, taskID string, patch Patch) error {
	updates := map[string]interface{}{"updated_at": time.Now()}

	if patch.Text != nil {
		updates["text"] = *patch.Text
	}
	if patch.Note != nil {
		updates["note"] = *patch.Note
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.IsUrgent != nil {
		updates["is_urgent"] = *patch.IsUrgent
	}
	if patch.RecurrenceRule != nil {
		updates["recurrence_rule"] = string(*patch.RecurrenceRule)
	}
	if patch.ReminderSent != nil {
		updates["reminder_sent"] = *patch.ReminderSent
	}
	if patch.ClearDueDate {
		updates["due_date"] = nil
	} else if patch.DueDate != nil {
		updates["due_date"] = *patch.DueDate
	}
	// Calendar event ids are not stored for guest tasks; nothing to patch.

	result := r.db.WithContext(ctx).Model(&guestTask{}).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update guest task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *GuestTasksRepo) DeleteTask(ctx context.Context, userID, taskID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND task_id = ?", userID, taskID).
		Delete(&guestTask{})
	if result.Error != nil {
		return fmt.Errorf("delete guest task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *GuestTasksRepo) DeleteByParent(ctx context.Context, userID, parentID string) (int, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND parent_id = ?", userID, parentID).
		Delete(&guestTask{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete guest subtasks: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (r *GuestTasksRepo) CountUserTasks(ctx context.Context, userID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&guestTask{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count guest tasks: %w", err)
	}
	return int(count), nil
}

func (r *GuestTasksRepo) FindScheduled(ctx context.Context, userID string, from, to time.Time) ([]*model.Task, error) {
	var rows []guestTask
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status <> ? AND due_date >= ? AND due_date < ?",
			userID, string(model.StatusCompleted), from, to).
		Order("due_date ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list scheduled guest tasks: %w", err)
	}
	return fromGuestTasks(rows), nil
}

func (r *GuestTasksRepo) FindByStatus(ctx context.Context, userID string, status model.TaskStatus) ([]*model.Task, error) {
	var rows []guestTask
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(status)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list guest tasks by status: %w", err)
	}
	return fromGuestTasks(rows), nil
}

// helper functions

func toGuestTask(task *model.Task) *guestTask {
	return &guestTask{
		TaskID:         task.TaskID,
		UserID:         task.UserID,
		Text:           task.Text,
		Status:         string(task.Status),
		DueDate:        task.DueDate,
		Hashtags:       strings.Join(task.Hashtags, ","),
		IsUrgent:       task.IsUrgent,
		RecurrenceRule: string(task.RecurrenceRule),
		ReminderSent:   task.ReminderSent,
		ParentID:       task.ParentID,
		Note:           task.Note,
		CreatedAt:      task.CreatedAt,
		UpdatedAt:      task.UpdatedAt,
	}
}

func fromGuestTask(row guestTask) *model.Task {
	var tags []string
	if row.Hashtags != "" {
		tags = strings.Split(row.Hashtags, ",")
	}
	task := &model.Task{
		TaskID:         row.TaskID,
		UserID:         row.UserID,
		Text:           row.Text,
		Status:         model.TaskStatus(row.Status),
		DueDate:        row.DueDate,
		Hashtags:       tags,
		IsUrgent:       row.IsUrgent,
		RecurrenceRule: model.RecurrenceRule(row.RecurrenceRule),
		ReminderSent:   row.ReminderSent,
		ParentID:       row.ParentID,
		Note:           row.Note,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	task.Normalize()
	return task
}

func fromGuestTasks(rows []guestTask) []*model.Task {
	tasks := make([]*model.Task, len(rows))
	for i, row := range rows {
		tasks[i] = fromGuestTask(row)
	}
	return tasks
}

// ensureDirForSQLite creates the parent dir for the SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create guest db dir %q: %w", dir, err)
	}
	return nil
}
