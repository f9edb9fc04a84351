package handler

import (
	"errors"

	"main/dto"
	"main/model"
	"main/repository"
	"main/usecase"
	"main/utils"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	service      *usecase.TasksService
	guestService *usecase.TasksService
}

func NewTaskHandler(service, guestService *usecase.TasksService) *TaskHandler {
	return &TaskHandler{service: service, guestService: guestService}
}

// serviceFor picks the store variant for the request: the remote store for
// authenticated users, the local quota-limited one for guests.
func (h *TaskHandler) serviceFor(c *gin.Context) (*usecase.TasksService, string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.Unauthorized(c, "Missing user ID")
		return nil, "", false
	}
	if c.GetBool("guest") {
		return h.guestService, userID.(string), true
	}
	return h.service, userID.(string), true
}

func (h *TaskHandler) GetUserTasks(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	tasks, err := svc.GetUserTasks(c.Request.Context(), userID)
	if err != nil {
		utils.InternalError(c, "Failed to fetch tasks")
		return
	}

	utils.Success(c, gin.H{"tasks": dto.ToTaskResponses(tasks)})
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if req.RecurrenceRule != "" && !model.ValidRecurrenceRule(req.RecurrenceRule) {
		utils.BadRequest(c, "Invalid recurrence rule")
		return
	}

	task, err := svc.AddTask(c.Request.Context(), userID, usecase.TaskInput{
		Text:           req.Text,
		Hashtags:       req.Hashtags,
		DueDate:        req.DueDate,
		IsUrgent:       req.IsUrgent,
		RecurrenceRule: req.RecurrenceRule,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrGuestQuotaExceeded) {
			utils.Forbidden(c, err.Error())
			return
		}
		utils.InternalError(c, "Failed to create task")
		return
	}
	if task == nil {
		// Empty text is silently rejected.
		utils.Success(c, nil)
		return
	}

	response := dto.ToTaskResponse(task)
	utils.Created(c, response)
}

func (h *TaskHandler) CreateTasksBatch(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	var req dto.CreateTasksBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	inputs := make([]usecase.TaskInput, len(req.Tasks))
	for i, t := range req.Tasks {
		if t.RecurrenceRule != "" && !model.ValidRecurrenceRule(t.RecurrenceRule) {
			utils.BadRequest(c, "Invalid recurrence rule")
			return
		}
		inputs[i] = usecase.TaskInput{
			Text:           t.Text,
			Hashtags:       t.Hashtags,
			DueDate:        t.DueDate,
			IsUrgent:       t.IsUrgent,
			RecurrenceRule: t.RecurrenceRule,
		}
	}

	tasks, err := svc.AddTasksBatch(c.Request.Context(), userID, inputs)
	if err != nil {
		if errors.Is(err, usecase.ErrGuestQuotaExceeded) {
			utils.Forbidden(c, err.Error())
			return
		}
		utils.InternalError(c, "Failed to create tasks")
		return
	}

	utils.Created(c, gin.H{"tasks": dto.ToTaskResponses(tasks)})
}

func (h *TaskHandler) CreateSubtasks(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	parentID := c.Param("id")

	var req dto.CreateSubtasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tasks, err := svc.AddSubtasksBatch(c.Request.Context(), userID, parentID, req.Texts)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTaskNotFound):
			utils.NotFound(c, "Parent task not found")
		case errors.Is(err, usecase.ErrGuestQuotaExceeded):
			utils.Forbidden(c, err.Error())
		default:
			utils.InternalError(c, "Failed to create subtasks")
		}
		return
	}

	utils.Created(c, gin.H{"tasks": dto.ToTaskResponses(tasks)})
}

func (h *TaskHandler) UpdateTaskText(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	var req dto.UpdateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := svc.UpdateTaskText(c.Request.Context(), userID, c.Param("id"), req.Text); err != nil {
		h.writeTaskError(c, err, "Failed to update task text")
		return
	}

	utils.Success(c, nil)
}

func (h *TaskHandler) UpdateTaskNote(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	var req dto.UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := svc.UpdateTaskNote(c.Request.Context(), userID, c.Param("id"), req.Note); err != nil {
		h.writeTaskError(c, err, "Failed to update task note")
		return
	}

	utils.Success(c, nil)
}

func (h *TaskHandler) ToggleTask(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	task, err := svc.ToggleTask(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeTaskError(c, err, "Failed to toggle task")
		return
	}

	utils.Success(c, dto.ToTaskResponse(task))
}

func (h *TaskHandler) UpdateTaskStatus(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if !model.ValidTaskStatus(req.Status) {
		utils.BadRequest(c, "Invalid task status")
		return
	}

	if err := svc.UpdateTaskStatus(c.Request.Context(), userID, c.Param("id"), req.Status); err != nil {
		h.writeTaskError(c, err, "Failed to update task status")
		return
	}

	utils.Success(c, nil)
}

func (h *TaskHandler) ToggleTaskUrgency(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	if err := svc.ToggleTaskUrgency(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeTaskError(c, err, "Failed to toggle urgency")
		return
	}

	utils.Success(c, nil)
}

func (h *TaskHandler) UpdateTaskDueDate(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	var req dto.UpdateDueDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := svc.UpdateTaskDueDate(c.Request.Context(), userID, c.Param("id"), req.DueDate); err != nil {
		h.writeTaskError(c, err, "Failed to update due date")
		return
	}

	utils.Success(c, nil)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	if err := svc.DeleteTask(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeTaskError(c, err, "Failed to delete task")
		return
	}

	utils.Success(c, gin.H{"message": "Task deleted"})
}

func (h *TaskHandler) MarkReminderSent(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	if err := svc.MarkReminderSent(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeTaskError(c, err, "Failed to mark reminder sent")
		return
	}

	utils.Success(c, nil)
}

func (h *TaskHandler) SyncCalendar(c *gin.Context) {
	svc, userID, ok := h.serviceFor(c)
	if !ok {
		return
	}

	synced, err := svc.SyncExistingTasksToCalendar(c.Request.Context(), userID)
	if err != nil {
		utils.InternalError(c, "Failed to sync tasks to calendar")
		return
	}

	utils.Success(c, gin.H{"synced": synced})
}

func (h *TaskHandler) writeTaskError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, repository.ErrTaskNotFound) {
		utils.NotFound(c, "Task not found")
		return
	}
	utils.InternalError(c, fallback)
}
