package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"main/usecase"
	"main/utils"

	"github.com/gin-gonic/gin"
)

// newTaskRouter wires the task routes behind a stub auth layer that injects
// the given identity.
func newTaskRouter(t *testing.T, userID string, guest bool) (*gin.Engine, *linkRepo) {
	t.Helper()
	utils.InitValidator()

	repo := &linkRepo{}
	service := usecase.NewTasksService(repo, nil)
	guestService := usecase.NewGuestTasksService(repo)
	h := NewTaskHandler(service, guestService)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("guest", guest)
		c.Next()
	})

	tasks := router.Group("/api/tasks")
	{
		tasks.GET("/", h.GetUserTasks)
		tasks.POST("/", h.CreateTask)
		tasks.POST("/batch", h.CreateTasksBatch)
		tasks.POST("/:id/subtasks", h.CreateSubtasks)
		tasks.POST("/:id/toggle", h.ToggleTask)
		tasks.PUT("/:id/status", h.UpdateTaskStatus)
		tasks.PUT("/:id/due-date", h.UpdateTaskDueDate)
		tasks.DELETE("/:id", h.DeleteTask)
	}
	return router, repo
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Data  map[string]interface{} `json:"data"`
		Error string                 `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp.Data
}

func TestCreateTaskHandler(t *testing.T) {
	t.Run("creates and returns the task", func(t *testing.T) {
		router, _ := newTaskRouter(t, "user-1", false)

		w := doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{
			"text":     "buy milk",
			"hashtags": []string{"errands"},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		data := decodeData(t, w)
		if data["text"] != "buy milk" {
			t.Errorf("expected text in response, got %v", data)
		}
		if data["id"] == "" || data["id"] == nil {
			t.Error("expected a generated id")
		}
	})

	t.Run("whitespace-only text returns success with no task", func(t *testing.T) {
		router, repo := newTaskRouter(t, "user-1", false)

		w := doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{"text": "   "})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if len(repo.tasks) != 0 {
			t.Errorf("expected no stored tasks, got %d", len(repo.tasks))
		}
	})

	t.Run("invalid recurrence rule is rejected", func(t *testing.T) {
		router, _ := newTaskRouter(t, "user-1", false)

		w := doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{
			"text":            "stretch",
			"recurrence_rule": "hourly",
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("guest quota maps to 403", func(t *testing.T) {
		router, _ := newTaskRouter(t, "guest-1", true)

		for i := 0; i < usecase.GuestTaskQuota; i++ {
			w := doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{
				"text": fmt.Sprintf("task %d", i),
			})
			if w.Code != http.StatusCreated {
				t.Fatalf("seed create %d failed: %d", i, w.Code)
			}
		}

		w := doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{"text": "overflow"})
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestGetUserTasksHandler(t *testing.T) {
	router, _ := newTaskRouter(t, "user-1", false)

	for _, text := range []string{"one", "two"} {
		doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{"text": text})
	}

	w := doJSON(t, router, http.MethodGet, "/api/tasks/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	data := decodeData(t, w)
	tasks, ok := data["tasks"].([]interface{})
	if !ok || len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %v", data["tasks"])
	}
}

func TestTaskNotFoundMapsTo404(t *testing.T) {
	router, _ := newTaskRouter(t, "user-1", false)

	w := doJSON(t, router, http.MethodPost, "/api/tasks/missing/toggle", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodDelete, "/api/tasks/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateSubtasksHandler(t *testing.T) {
	router, _ := newTaskRouter(t, "user-1", false)

	w := doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{"text": "parent"})
	if w.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d", w.Code)
	}
	parentID, _ := decodeData(t, w)["id"].(string)
	if parentID == "" {
		t.Fatal("no parent id returned")
	}

	w = doJSON(t, router, http.MethodPost, "/api/tasks/"+parentID+"/subtasks", map[string]interface{}{
		"texts": []string{"child a", "child b"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/tasks/missing/subtasks", map[string]interface{}{
		"texts": []string{"orphan"},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing parent, got %d", w.Code)
	}
}

func TestUpdateTaskStatusHandler(t *testing.T) {
	router, _ := newTaskRouter(t, "user-1", false)

	w := doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{"text": "card"})
	id, _ := decodeData(t, w)["id"].(string)

	w = doJSON(t, router, http.MethodPut, "/api/tasks/"+id+"/status", map[string]interface{}{
		"status": "inprogress",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPut, "/api/tasks/"+id+"/status", map[string]interface{}{
		"status": "sideways",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestUpdateTaskDueDateHandler(t *testing.T) {
	router, _ := newTaskRouter(t, "user-1", false)

	w := doJSON(t, router, http.MethodPost, "/api/tasks/", map[string]interface{}{"text": "report"})
	id, _ := decodeData(t, w)["id"].(string)

	w = doJSON(t, router, http.MethodPut, "/api/tasks/"+id+"/due-date", map[string]interface{}{
		"due_date": "2026-04-01T17:00:00Z",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// null clears the date rather than failing validation
	w = doJSON(t, router, http.MethodPut, "/api/tasks/"+id+"/due-date", map[string]interface{}{
		"due_date": nil,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for cleared date, got %d: %s", w.Code, w.Body.String())
	}
}
