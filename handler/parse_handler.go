package handler

import (
	"errors"
	"net/http"

	"main/dto"
	"main/services"
	"main/utils"

	"github.com/gin-gonic/gin"
)

// ParseHandler exposes the AI task parser to the web client.
type ParseHandler struct {
	parser *services.GeminiClient
}

func NewParseHandler(parser *services.GeminiClient) *ParseHandler {
	return &ParseHandler{parser: parser}
}

// ParseTask turns a raw entry (free text and/or attached media) into
// structured task fields without creating a task; the client decides what to
// do with the result.
func (h *ParseHandler) ParseTask(c *gin.Context) {
	var req dto.ParseTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	parsed, err := h.parser.ParseTask(c.Request.Context(), req.Text, req.Media...)
	if err != nil {
		h.writeParseError(c, err)
		return
	}

	utils.Success(c, parsed)
}

// ParseTasks is the batch variant: one entry that may describe several
// tasks, returned as a list.
func (h *ParseHandler) ParseTasks(c *gin.Context) {
	var req dto.ParseTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	parsed, err := h.parser.ParseTasks(c.Request.Context(), req.Text, req.Media...)
	if err != nil {
		h.writeParseError(c, err)
		return
	}

	utils.Success(c, parsed)
}

func (h *ParseHandler) writeParseError(c *gin.Context, err error) {
	// Credential failures are distinguished so the client can re-prompt
	// for an API key instead of retrying.
	if errors.Is(err, services.ErrInvalidAPIKey) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "AI parser credential rejected",
			"code":  "NEEDS_NEW_API_KEY",
		})
		return
	}
	utils.InternalError(c, "Failed to parse task")
}
