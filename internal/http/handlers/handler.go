package handlers

import (
	"errors"
	"net/http"

	"questkeeper_notifications/internal/domain"
	"questkeeper_notifications/internal/logger"
	"questkeeper_notifications/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Scheduler  *service.Scheduler
	Registry   *service.Registry
	Dispatcher *service.Dispatcher
}

func NewHandler(scheduler *service.Scheduler, registry *service.Registry, dispatcher *service.Dispatcher) *Handler {
	return &Handler{
		Scheduler:  scheduler,
		Registry:   registry,
		Dispatcher: dispatcher,
	}
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope. message is the human readable summary,
// err carries the detail.
func fail(c *gin.Context, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error(message, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"message": message,
	})
}

func ok(c *gin.Context, message string, extra gin.H) {
	body := gin.H{
		"success": true,
		"error":   nil,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
