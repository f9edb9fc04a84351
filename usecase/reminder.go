package usecase

import (
	"context"
	"log"
	"time"

	"main/model"
	"main/utils"
)

const DefaultScanInterval = 5 * time.Second

// userSnapshot replaces one user's task view wholesale.
type userSnapshot struct {
	userID string
	tasks  []*model.Task
}

// ReminderScanner runs in its own goroutine, away from request handling. It
// receives task snapshots over a channel and, on every tick, emits one event
// per overdue, not-yet-reminded task. The scanner never mutates task state
// and keeps no "already notified" memory of its own: deduplication across
// ticks relies entirely on the persisted ReminderSent flag, so the consumer
// must mark a task before the next tick to avoid a repeat.
type ReminderScanner struct {
	interval  time.Duration
	snapshots chan userSnapshot
	overdue   chan *model.Task
	now       func() time.Time
}

func NewReminderScanner(interval time.Duration) *ReminderScanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &ReminderScanner{
		interval:  interval,
		snapshots: make(chan userSnapshot, 64),
		overdue:   make(chan *model.Task, 64),
		now:       time.Now,
	}
}

// Overdue is the outbound event stream, one task per qualifying hit per tick.
func (s *ReminderScanner) Overdue() <-chan *model.Task {
	return s.overdue
}

// Push hands the scanner a fresh read-only snapshot of a user's tasks. Never
// blocks a mutation: if the scanner is behind, the stale snapshot is dropped
// and the next push supersedes it.
func (s *ReminderScanner) Push(userID string, tasks []*model.Task) {
	select {
	case s.snapshots <- userSnapshot{userID: userID, tasks: tasks}:
	default:
		log.Printf("reminder scanner busy, dropping snapshot for user %s", userID)
	}
}

// Run owns the scan loop until the context is cancelled. The task state
// lives entirely inside this goroutine; the channels are the only contact
// surface with the rest of the process.
func (s *ReminderScanner) Run(ctx context.Context) {
	byUser := make(map[string][]*model.Task)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(s.overdue)
			return
		case snap := <-s.snapshots:
			byUser[snap.userID] = snap.tasks
		case <-ticker.C:
			now := s.now()
			for _, tasks := range byUser {
				for _, task := range tasks {
					if !task.IsOverdue(now) {
						continue
					}
					utils.RemindersEmitted.Inc()
					select {
					case s.overdue <- task:
					case <-ctx.Done():
						close(s.overdue)
						return
					}
				}
			}
		}
	}
}
