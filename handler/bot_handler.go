package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"main/model"
	"main/repository"
	"main/services"
	"main/usecase"
	"main/utils"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const botHelpText = `Commands:
/start <token> - link this chat to your account
/add <text> - add a task in plain language
/schedule [today|tomorrow] - tasks scheduled for the day
/list [all|todo|inprogress|completed|urgent] - list tasks
/help - this message`

const botUnlinkedText = "This chat is not linked yet. Open the app, copy your link token and send /start <token>."

const botApologyText = "Sorry, something went wrong while handling that. Please try again."

// BotSender is the reply transport; *tgbotapi.BotAPI satisfies it.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatLinks resolves and records chat-to-user bindings;
// *repository.ChatLinksRepo satisfies it.
type ChatLinks interface {
	LinkChat(ctx context.Context, link *model.ChatLink) error
	GetLink(ctx context.Context, chatID int64) (*model.ChatLink, error)
}

// BotHandler is the stateless webhook dispatcher for inbound Telegram
// messages. Every branch replies exactly once, and handled paths always
// return 200 so the transport never retry-storms on transient failures.
type BotHandler struct {
	sender BotSender
	tasks  *usecase.TasksService
	links  ChatLinks
	cache  *services.ChatLinkCache
	parser *services.GeminiClient
}

func NewBotHandler(sender BotSender, tasks *usecase.TasksService, links ChatLinks, cache *services.ChatLinkCache, parser *services.GeminiClient) *BotHandler {
	return &BotHandler{
		sender: sender,
		tasks:  tasks,
		links:  links,
		cache:  cache,
		parser: parser,
	}
}

func (h *BotHandler) Webhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		// Malformed envelope: nothing to reply to, still 200 so Telegram
		// drops the update instead of redelivering it.
		log.Printf("bot webhook: invalid update payload: %v", err)
		c.Status(200)
		return
	}

	if update.Message == nil || update.Message.Chat == nil {
		c.Status(200)
		return
	}

	h.handleMessage(c.Request.Context(), update.Message)
	c.Status(200)
}

func (h *BotHandler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("bot webhook: panic handling message from chat %d: %v", chatID, r)
			h.reply(chatID, botApologyText)
		}
	}()

	// Linking runs before any user resolution. Only the exact /start
	// command counts; "/startle" is not a link attempt.
	if command, args := splitCommand(text); command == "/start" {
		h.handleStart(ctx, chatID, msg.Chat.UserName, args)
		return
	}

	link, err := h.resolveLink(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotLinked) {
			h.reply(chatID, botUnlinkedText)
			return
		}
		log.Printf("bot webhook: resolving chat %d: %v", chatID, err)
		h.reply(chatID, botApologyText)
		return
	}

	command, args := splitCommand(text)
	trackBotCommand(command)

	switch command {
	case "/add":
		h.handleAdd(ctx, chatID, link.UserID, args)
	case "/schedule":
		h.handleSchedule(ctx, chatID, link.UserID, args)
	case "/list":
		h.handleList(ctx, chatID, link.UserID, args)
	case "/help":
		h.reply(chatID, botHelpText)
	default:
		h.reply(chatID, "I did not understand that. Send /help for the command list.")
	}
}

func (h *BotHandler) handleStart(ctx context.Context, chatID int64, username, token string) {
	trackBotCommand("/start")

	if token == "" {
		h.reply(chatID, "Send /start <token> with the link token from the app.")
		return
	}

	link := &model.ChatLink{
		ChatID:   chatID,
		UserID:   token,
		Username: username,
		LinkedAt: time.Now(),
	}
	if err := h.links.LinkChat(ctx, link); err != nil {
		log.Printf("bot webhook: linking chat %d: %v", chatID, err)
		h.reply(chatID, botApologyText)
		return
	}
	if h.cache != nil {
		if err := h.cache.InvalidateLink(ctx, chatID); err != nil {
			log.Printf("bot webhook: invalidating cached link for chat %d: %v", chatID, err)
		}
	}

	h.reply(chatID, "Linked! You can now add and list tasks from this chat. Send /help to see what I can do.")
}

func (h *BotHandler) handleAdd(ctx context.Context, chatID int64, userID, text string) {
	if text == "" {
		h.reply(chatID, "Usage: /add <task description>")
		return
	}

	parsed, err := h.parser.ParseTask(ctx, text)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAPIKey) {
			log.Printf("bot webhook: AI parser credential rejected")
			h.reply(chatID, "The AI parser credential is no longer valid. Please update the API key in the app.")
			return
		}
		log.Printf("bot webhook: parsing task: %v", err)
		h.reply(chatID, botApologyText)
		return
	}

	input := usecase.TaskInput{
		Text:     parsed.Content,
		Hashtags: parsed.Tags,
		IsUrgent: parsed.IsUrgent,
	}
	if parsed.DueDate != "" {
		due, err := time.Parse(time.RFC3339, parsed.DueDate)
		if err == nil {
			input.DueDate = &due
		}
	}

	task, err := h.tasks.AddTask(ctx, userID, input)
	if err != nil || task == nil {
		if err != nil {
			log.Printf("bot webhook: creating task: %v", err)
		}
		h.reply(chatID, botApologyText)
		return
	}

	h.reply(chatID, formatParsedReply(task))
}

func (h *BotHandler) handleSchedule(ctx context.Context, chatID int64, userID, args string) {
	keyword := strings.ToLower(strings.TrimSpace(args))
	if keyword == "" {
		keyword = "today"
	}
	if keyword != "today" && keyword != "tomorrow" {
		h.reply(chatID, "Usage: /schedule [today|tomorrow]")
		return
	}

	from, to := scheduleDayWindow(keyword, time.Now())
	tasks, err := h.tasks.ListScheduled(ctx, userID, from, to)
	if err != nil {
		log.Printf("bot webhook: listing schedule: %v", err)
		h.reply(chatID, botApologyText)
		return
	}

	if len(tasks) == 0 {
		h.reply(chatID, fmt.Sprintf("Nothing scheduled for %s.", keyword))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Scheduled for %s:\n", keyword)
	for _, task := range tasks {
		fmt.Fprintf(&sb, "• %s — %s\n", task.DueDate.UTC().Format("15:04"), task.Text)
	}
	h.reply(chatID, strings.TrimSpace(sb.String()))
}

func (h *BotHandler) handleList(ctx context.Context, chatID int64, userID, args string) {
	filter := strings.ToLower(strings.TrimSpace(args))
	if filter == "" {
		filter = "all"
	}

	var tasks []*model.Task
	var err error

	switch filter {
	case "all":
		tasks, err = h.tasks.GetUserTasks(ctx, userID)
	case "todo":
		tasks, err = h.tasks.ListByStatus(ctx, userID, model.StatusTodo)
	case "inprogress":
		tasks, err = h.tasks.ListByStatus(ctx, userID, model.StatusInProgress)
	case "completed":
		tasks, err = h.tasks.ListByStatus(ctx, userID, model.StatusCompleted)
		if err == nil {
			// Completed history is capped to the 5 most recent.
			sort.SliceStable(tasks, func(i, j int) bool {
				return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
			})
			if len(tasks) > 5 {
				tasks = tasks[:5]
			}
		}
	case "urgent":
		tasks, err = h.tasks.GetUserTasks(ctx, userID)
		if err == nil {
			urgent := tasks[:0]
			for _, task := range tasks {
				if task.IsUrgent && task.Status != model.StatusCompleted {
					urgent = append(urgent, task)
				}
			}
			tasks = urgent
		}
	default:
		h.reply(chatID, "Usage: /list [all|todo|inprogress|completed|urgent]")
		return
	}

	if err != nil {
		log.Printf("bot webhook: listing tasks: %v", err)
		h.reply(chatID, botApologyText)
		return
	}

	if len(tasks) == 0 {
		h.reply(chatID, "No tasks found.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Tasks (%s):\n", filter)
	for _, task := range tasks {
		sb.WriteString("• ")
		if task.Status == model.StatusCompleted {
			sb.WriteString("✅ ")
		} else if task.IsUrgent {
			sb.WriteString("❗ ")
		}
		sb.WriteString(task.Text)
		if task.DueDate != nil {
			fmt.Fprintf(&sb, " (due %s)", task.DueDate.UTC().Format("2006-01-02 15:04"))
		}
		sb.WriteByte('\n')
	}
	h.reply(chatID, strings.TrimSpace(sb.String()))
}

// resolveLink checks the cache first and falls back to the repository,
// repopulating the cache on a miss.
func (h *BotHandler) resolveLink(ctx context.Context, chatID int64) (*model.ChatLink, error) {
	if h.cache != nil {
		link, err := h.cache.GetLink(ctx, chatID)
		if err != nil {
			log.Printf("bot webhook: link cache read failed: %v", err)
		} else if link != nil {
			return link, nil
		}
	}

	link, err := h.links.GetLink(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetLink(ctx, link); err != nil {
			log.Printf("bot webhook: link cache write failed: %v", err)
		}
	}
	return link, nil
}

func (h *BotHandler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.sender.Send(msg); err != nil {
		log.Printf("bot webhook: sending reply to chat %d: %v", chatID, err)
	}
}

// helper functions

func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	parts := strings.SplitN(text, " ", 2)
	command := parts[0]
	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args
}

func trackBotCommand(command string) {
	switch command {
	case "/start", "/add", "/schedule", "/list", "/help":
		// known commands keep their own label
	default:
		command = "unknown"
	}
	utils.TrackBotCommand(command)
}

// scheduleDayWindow resolves today/tomorrow to a UTC day window.
func scheduleDayWindow(keyword string, now time.Time) (time.Time, time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if keyword == "tomorrow" {
		day = day.AddDate(0, 0, 1)
	}
	return day, day.AddDate(0, 0, 1)
}

func formatParsedReply(task *model.Task) string {
	var sb strings.Builder
	sb.WriteString("Added: ")
	sb.WriteString(task.Text)
	if task.DueDate != nil {
		fmt.Fprintf(&sb, "\nDue: %s UTC", task.DueDate.UTC().Format("2006-01-02 15:04"))
	}
	if len(task.Hashtags) > 0 {
		fmt.Fprintf(&sb, "\nTags: #%s", strings.Join(task.Hashtags, " #"))
	}
	if task.IsUrgent {
		sb.WriteString("\nMarked urgent")
	}
	return sb.String()
}
