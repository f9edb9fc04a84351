package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "collection"},
	)

	// Task Metrics
	TaskOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_operations_total",
			Help: "Total number of task operations",
		},
		[]string{"operation"}, // create, toggle, update, delete, recurrence_spawn
	)

	// Calendar Sync Metrics
	CalendarSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_sync_total",
			Help: "Total number of calendar sync attempts",
		},
		[]string{"operation", "status"}, // create/update/delete, success/failure
	)

	// Bot Metrics
	BotCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands handled",
		},
		[]string{"command"},
	)

	// Reminder Metrics
	RemindersEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_emitted_total",
			Help: "Total number of overdue reminders emitted by the scanner",
		},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors by component and reason",
		},
		[]string{"component", "reason"},
	)
)

// TrackDBOperation tracks database operation duration
func TrackDBOperation(operation, collection string) *prometheus.Timer {
	return prometheus.NewTimer(DBOperationDuration.WithLabelValues(operation, collection))
}

// TrackTaskOperation increments the task operation counter
func TrackTaskOperation(operation string) {
	TaskOperationsTotal.WithLabelValues(operation).Inc()
}

// TrackCalendarSync records a calendar sync attempt outcome
func TrackCalendarSync(operation, status string) {
	CalendarSyncTotal.WithLabelValues(operation, status).Inc()
}

// TrackBotCommand increments the bot command counter
func TrackBotCommand(command string) {
	BotCommandsTotal.WithLabelValues(command).Inc()
}

// TrackError increments the error counter by component and reason
func TrackError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
