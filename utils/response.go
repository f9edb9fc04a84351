package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every JSON endpoint answers with: data on
// success, error on failure, never both.
type Response struct {
	Status  int         `json:"-"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &Response{
		Status: http.StatusOK,
		Data:   data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, &Response{
		Status:  http.StatusCreated,
		Message: "Resource created successfully",
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	writeError(c, http.StatusUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	writeError(c, http.StatusForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	writeError(c, http.StatusNotFound, message)
}

func InternalError(c *gin.Context, message string) {
	writeError(c, http.StatusInternalServerError, message)
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, &Response{
		Status: status,
		Error:  message,
	})
}
