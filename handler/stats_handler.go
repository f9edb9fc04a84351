package handler

import (
	"log"

	"main/usecase"
	"main/utils"

	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	service      *usecase.TasksService
	guestService *usecase.TasksService
}

func NewStatsHandler(service, guestService *usecase.TasksService) *StatsHandler {
	return &StatsHandler{service: service, guestService: guestService}
}

// GetTaskStats serves the dashboard counters.
func (h *StatsHandler) GetTaskStats(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.Unauthorized(c, "Missing user ID")
		return
	}

	svc := h.service
	if c.GetBool("guest") {
		svc = h.guestService
	}

	stats, err := svc.GetStats(c.Request.Context(), userID.(string))
	if err != nil {
		log.Printf("Error computing stats for user %s: %v", userID, err)
		utils.InternalError(c, "Failed to compute stats")
		return
	}

	utils.Success(c, stats)
}
