package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"main/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DigestSender is the delivery transport; *tgbotapi.BotAPI satisfies it.
type DigestSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatLinkLister enumerates every chat binding for the fan-out;
// *repository.ChatLinksRepo satisfies it.
type ChatLinkLister interface {
	ListLinks(ctx context.Context) ([]*model.ChatLink, error)
}

// DigestService builds the periodic schedule summary pushed to every linked
// chat. Per-user failures are logged and skipped so one bad chat never
// blocks the fan-out.
type DigestService struct {
	tasks  *TasksService
	links  ChatLinkLister
	sender DigestSender
}

func NewDigestService(tasks *TasksService, links ChatLinkLister, sender DigestSender) *DigestService {
	return &DigestService{tasks: tasks, links: links, sender: sender}
}

// SendDailyDigests fans a today-summary out to every linked chat.
func (svc *DigestService) SendDailyDigests(ctx context.Context) error {
	links, err := svc.links.ListLinks(ctx)
	if err != nil {
		return fmt.Errorf("list chat links: %w", err)
	}

	for _, link := range links {
		summary, err := svc.buildSummary(ctx, link.UserID, time.Now())
		if err != nil {
			log.Printf("digest: building summary for user %s: %v", link.UserID, err)
			continue
		}
		if summary == "" {
			continue
		}

		msg := tgbotapi.NewMessage(link.ChatID, summary)
		if _, err := svc.sender.Send(msg); err != nil {
			log.Printf("digest: sending to chat %d: %v", link.ChatID, err)
		}
	}

	return nil
}

func (svc *DigestService) buildSummary(ctx context.Context, userID string, now time.Time) (string, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	scheduled, err := svc.tasks.ListScheduled(ctx, userID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return "", err
	}

	all, err := svc.tasks.GetUserTasks(ctx, userID)
	if err != nil {
		return "", err
	}

	var overdue []*model.Task
	for _, task := range all {
		if task.Status != model.StatusCompleted && task.DueDate != nil && task.DueDate.Before(day) {
			overdue = append(overdue, task)
		}
	}

	if len(scheduled) == 0 && len(overdue) == 0 {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Daily summary — %s\n", now.UTC().Format("2006-01-02"))

	if len(scheduled) > 0 {
		sb.WriteString("\nToday:\n")
		for _, task := range scheduled {
			fmt.Fprintf(&sb, "• %s — %s\n", task.DueDate.UTC().Format("15:04"), task.Text)
		}
	}

	if len(overdue) > 0 {
		sb.WriteString("\n⚠️ Overdue:\n")
		for _, task := range overdue {
			fmt.Fprintf(&sb, "• %s (due %s)\n", task.Text, task.DueDate.UTC().Format("2006-01-02"))
		}
	}

	return strings.TrimSpace(sb.String()), nil
}
