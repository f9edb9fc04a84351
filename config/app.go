package config

import (
	"main/utils"
	"time"
)

type AppConfig struct {
	Port              string
	GuestDatabasePath string
	RedisURL          string
	ChatLinkCacheTTL  time.Duration

	TelegramToken string
	GeminiAPIKey  string
	CalendarToken string

	ReminderScanInterval time.Duration
	DigestSchedule       string // cron spec
}

func LoadAppConfig() AppConfig {
	return AppConfig{
		Port:              utils.GetEnvAsString("PORT", "8080"),
		GuestDatabasePath: utils.GetEnvAsString("GUEST_DB_PATH", "guest_tasks.db"),
		RedisURL:          utils.GetEnvAsString("REDIS_URL", "redis://localhost:6379/0"),
		ChatLinkCacheTTL:  utils.GetEnvAsDuration("CHAT_LINK_CACHE_TTL", 10*time.Minute),

		TelegramToken: utils.GetEnvAsString("TELEGRAM_TOKEN", ""),
		GeminiAPIKey:  utils.GetEnvAsString("GEMINI_API_KEY", ""),
		CalendarToken: utils.GetEnvAsString("GOOGLE_CALENDAR_TOKEN", ""),

		ReminderScanInterval: utils.GetEnvAsDuration("REMINDER_SCAN_INTERVAL", 5*time.Second),
		DigestSchedule:       utils.GetEnvAsString("DIGEST_CRON", "0 8 * * *"),
	}
}
