package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"main/config"
	"main/handler"
	"main/middleware"
	"main/model"
	"main/repository"
	"main/services"
	"main/usecase"
	"main/utils"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func init() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil && os.Getenv("GO_ENV") != "test" {
		log.Printf("No .env file loaded: %v", err)
	}

	// Check required environment variables
	requiredEnvVars := []string{
		"MONGO_URI",
		"MONGO_DB",
		"TASKS_COLLECTION",
		"CHAT_LINKS_COLLECTION",
		"JWT_SECRET_KEY",
		"JWT_EXPIRATION_TIME",
		"PORT",
	}

	for _, envVar := range requiredEnvVars {
		if os.Getenv(envVar) == "" && os.Getenv("GO_ENV") != "test" {
			log.Fatalf("Required environment variable %s is not set", envVar)
		}
	}

	utils.InitValidator()
	utils.InitJWT()
	utils.InitMongoClient()
}

type application struct {
	taskHandler  *handler.TaskHandler
	statsHandler *handler.StatsHandler
	parseHandler *handler.ParseHandler
	botHandler   *handler.BotHandler
}

func setupRouter(app *application) *gin.Engine {
	router := gin.Default()
	// The bot webhook contract is 405 for non-POST, not gin's default 404.
	router.HandleMethodNotAllowed = true

	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestTracingMiddleware())
	router.Use(middleware.RequestSizeLimiter(1 << 20))
	router.Use(middleware.EnhancedRecoveryMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if app.botHandler != nil {
		router.POST("/api/telegram/webhook", app.botHandler.Webhook)
	}

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware())
	{
		tasks := protected.Group("/tasks")
		{
			tasks.GET("/", app.taskHandler.GetUserTasks)
			tasks.POST("/", app.taskHandler.CreateTask)
			tasks.POST("/batch", app.taskHandler.CreateTasksBatch)
			tasks.POST("/parse", app.parseHandler.ParseTask)
			tasks.POST("/parse-batch", app.parseHandler.ParseTasks)
			tasks.POST("/sync-calendar", app.taskHandler.SyncCalendar)
			tasks.GET("/stats", middleware.CacheControlMiddleware("30"), app.statsHandler.GetTaskStats)

			tasks.POST("/:id/subtasks", app.taskHandler.CreateSubtasks)
			tasks.POST("/:id/toggle", app.taskHandler.ToggleTask)
			tasks.POST("/:id/toggle-urgency", app.taskHandler.ToggleTaskUrgency)
			tasks.POST("/:id/reminder-sent", app.taskHandler.MarkReminderSent)
			tasks.PUT("/:id/text", app.taskHandler.UpdateTaskText)
			tasks.PUT("/:id/note", app.taskHandler.UpdateTaskNote)
			tasks.PUT("/:id/status", app.taskHandler.UpdateTaskStatus)
			tasks.PUT("/:id/due-date", app.taskHandler.UpdateTaskDueDate)
			tasks.DELETE("/:id", app.taskHandler.DeleteTask)
		}
	}

	return router
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := config.LoadAppConfig()
	dbCfg := config.LoadDatabaseConfig()

	// Repositories
	tasksRepo := repository.GetTasksRepo(utils.MongoClient)
	linksRepo := repository.GetChatLinksRepo(utils.MongoClient)

	if err := repository.SetupIndexes(utils.MongoClient.Database(dbCfg.DatabaseName)); err != nil {
		log.Printf("Failed to set up indexes: %v", err)
	}

	guestDB, err := repository.NewGuestDB(appCfg.GuestDatabasePath)
	if err != nil {
		log.Fatalf("Failed to open guest database: %v", err)
	}
	guestRepo := repository.NewGuestTasksRepo(guestDB)

	// External collaborators
	var calendar usecase.CalendarSync
	if appCfg.CalendarToken != "" {
		calendar = services.NewCalendarClient(appCfg.CalendarToken)
	}
	gemini := services.NewGeminiClient(appCfg.GeminiAPIKey)

	linkCache, err := services.NewChatLinkCache(appCfg.RedisURL, appCfg.ChatLinkCacheTTL)
	if err != nil {
		log.Printf("Chat link cache unavailable, falling back to Mongo lookups: %v", err)
		linkCache = nil
	}

	// Services
	tasksService := usecase.NewTasksService(tasksRepo, calendar)
	guestService := usecase.NewGuestTasksService(guestRepo)

	scanner := usecase.NewReminderScanner(appCfg.ReminderScanInterval)
	tasksService.AttachScanner(scanner)
	go scanner.Run(ctx)
	go seedReminderFeeds(ctx, tasksService, linksRepo)

	// Telegram transport (optional: the web API works without it)
	var botAPI *tgbotapi.BotAPI
	if appCfg.TelegramToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(appCfg.TelegramToken)
		if err != nil {
			log.Printf("Telegram bot unavailable: %v", err)
			botAPI = nil
		} else {
			log.Printf("Telegram bot authorized on account %s", botAPI.Self.UserName)
		}
	}

	// Reminder consumer: notify the linked chat, then mark the task so the
	// scanner never reports it again.
	go func() {
		for task := range scanner.Overdue() {
			notifyOverdue(ctx, task, botAPI, linksRepo)
			if err := tasksService.MarkReminderSent(ctx, task.UserID, task.TaskID); err != nil {
				log.Printf("Failed to mark reminder sent for task %s: %v", task.TaskID, err)
			}
		}
	}()

	// Daily digest fan-out
	if botAPI != nil {
		digest := usecase.NewDigestService(tasksService, linksRepo, botAPI)
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(appCfg.DigestSchedule, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if err := digest.SendDailyDigests(jobCtx); err != nil {
				log.Printf("Daily digest failed: %v", err)
			}
		}); err != nil {
			log.Fatalf("Failed to schedule daily digest: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	go utils.StartSystemMetrics(ctx, 30*time.Second)

	app := &application{
		taskHandler:  handler.NewTaskHandler(tasksService, guestService),
		statsHandler: handler.NewStatsHandler(tasksService, guestService),
		parseHandler: handler.NewParseHandler(gemini),
	}
	if botAPI != nil {
		app.botHandler = handler.NewBotHandler(botAPI, tasksService, linksRepo, linkCache, gemini)
	}

	router := setupRouter(app)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", appCfg.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	if err := utils.MongoClient.Disconnect(shutdownCtx); err != nil {
		log.Printf("Mongo disconnect: %v", err)
	}
	log.Println("Shutdown complete.")
}

// seedReminderFeeds primes the reminder scanner with every linked user's
// current tasks. Without it, a task that was already overdue at boot would
// stay silent until its owner next touched the API.
func seedReminderFeeds(ctx context.Context, tasks *usecase.TasksService, linksRepo *repository.ChatLinksRepo) {
	links, err := linksRepo.ListLinks(ctx)
	if err != nil {
		log.Printf("Failed to list chat links for reminder seeding: %v", err)
		return
	}
	for _, link := range links {
		if _, err := tasks.GetUserTasks(ctx, link.UserID); err != nil {
			log.Printf("Failed to seed reminder feed for user %s: %v", link.UserID, err)
		}
	}
}

func notifyOverdue(ctx context.Context, task *model.Task, botAPI *tgbotapi.BotAPI, linksRepo *repository.ChatLinksRepo) {
	log.Printf("Task overdue: %s (user %s)", task.Text, task.UserID)
	if botAPI == nil {
		return
	}

	link, err := linksRepo.GetLinkByUser(ctx, task.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrChatNotLinked) {
			log.Printf("Failed to resolve chat for user %s: %v", task.UserID, err)
		}
		return
	}

	text := fmt.Sprintf("⏰ Overdue: %s (due %s UTC)", task.Text, task.DueDate.UTC().Format("2006-01-02 15:04"))
	if _, err := botAPI.Send(tgbotapi.NewMessage(link.ChatID, text)); err != nil {
		log.Printf("Failed to send overdue notification to chat %d: %v", link.ChatID, err)
	}
}
