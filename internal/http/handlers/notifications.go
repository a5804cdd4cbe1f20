package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"questkeeper_notifications/internal/domain"

	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	Notification struct {
		ID int64 `json:"id"`
	} `json:"notification"`
}

type notifyRequest struct {
	UserID  string            `json:"userId"`
	Message map[string]string `json:"message"`
}

// ListTaskNotifications returns every schedule row of a task.
func (h *Handler) ListTaskNotifications(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("taskId"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid task id", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	rows, err := h.Scheduler.ListForTask(c.Request.Context(), taskID)
	if err != nil {
		fail(c, statusFor(err), "Failed to load notifications", err)
		return
	}
	ok(c, "Notifications retrieved successfully", gin.H{"notifications": nonNil(rows)})
}

// SendNotification delivers one schedule row now.
func (h *Handler) SendNotification(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	if req.Notification.ID <= 0 {
		fail(c, http.StatusBadRequest, "Invalid request body", fmt.Errorf("%w: notification.id is required", domain.ErrValidation))
		return
	}

	res, err := h.Dispatcher.SendScheduled(c.Request.Context(), req.Notification.ID)
	if err != nil {
		message := "Failed to send notification"
		if errors.Is(err, domain.ErrNotFound) && res.Reason != "" {
			message = res.Reason
		}
		fail(c, statusFor(err), message, err)
		return
	}

	message := "Notification sent successfully"
	switch res.Status {
	case domain.DeliveryAlreadySent:
		message = "Notification already sent"
	case domain.DeliveryInFlight:
		message = "Notification is being sent"
	}
	ok(c, message, gin.H{"result": res})
}

// NotifyInApp pushes a silent data message to all of a user's devices.
func (h *Handler) NotifyInApp(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	res, err := h.Dispatcher.NotifyInApp(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		fail(c, statusFor(err), "Failed to send in-app notification", err)
		return
	}
	ok(c, "Notification sent successfully", gin.H{"result": res})
}

func Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong!")
}
