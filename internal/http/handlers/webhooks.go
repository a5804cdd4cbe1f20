package handlers

import (
	"fmt"
	"net/http"

	"questkeeper_notifications/internal/domain"

	"github.com/gin-gonic/gin"
)

// TaskWebhook receives task table changes and reschedules reminders.
func (h *Handler) TaskWebhook(c *gin.Context) {
	var payload domain.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		webhooks.WithLabelValues("tasks", "", "invalid").Inc()
		fail(c, http.StatusBadRequest, "Invalid webhook payload", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	change, err := payload.TaskChange()
	if err != nil {
		webhooks.WithLabelValues("tasks", string(payload.Type), "invalid").Inc()
		fail(c, http.StatusBadRequest, "Invalid webhook payload", err)
		return
	}

	res, err := h.Scheduler.ApplyTaskChange(c.Request.Context(), change)
	if err != nil {
		webhooks.WithLabelValues("tasks", string(payload.Type), "error").Inc()
		fail(c, statusFor(err), "Failed to schedule notification", err)
		return
	}
	webhooks.WithLabelValues("tasks", string(payload.Type), "ok").Inc()

	message := "Notifications scheduled successfully"
	switch {
	case res.Cancelled:
		message = "Notifications cancelled"
	case !res.Changed:
		message = "Notifications unchanged"
	}
	ok(c, message, gin.H{
		"notifications": nonNil(res.Notifications),
		"deleted":       res.Deleted,
		"cancelled":     res.Cancelled,
	})
}

// ProfileWebhook receives profile table changes and keeps device groups in sync.
func (h *Handler) ProfileWebhook(c *gin.Context) {
	var payload domain.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		webhooks.WithLabelValues("profiles", "", "invalid").Inc()
		fail(c, http.StatusBadRequest, "Invalid webhook payload", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	change, err := payload.ProfileChange()
	if err != nil {
		webhooks.WithLabelValues("profiles", string(payload.Type), "invalid").Inc()
		fail(c, http.StatusBadRequest, "Invalid webhook payload", err)
		return
	}

	ctx := c.Request.Context()
	switch ch := change.(type) {
	case domain.DeviceRegistered:
		key, err := h.Registry.ReconcileDeviceToken(ctx, ch)
		if err != nil {
			webhooks.WithLabelValues("profiles", string(payload.Type), "error").Inc()
			fail(c, statusFor(err), "Failed to register device", err)
			return
		}
		webhooks.WithLabelValues("profiles", string(payload.Type), "ok").Inc()
		ok(c, "Profile created successfully", gin.H{"deviceGroup": key})

	case domain.DeviceRemoved:
		if err := h.Registry.RemoveDeviceToken(ctx, ch); err != nil {
			webhooks.WithLabelValues("profiles", string(payload.Type), "error").Inc()
			fail(c, statusFor(err), "Failed to remove device", err)
			return
		}
		released, err := h.Registry.ReleaseIfUnused(ctx, ch.UserID())
		if err != nil {
			webhooks.WithLabelValues("profiles", string(payload.Type), "error").Inc()
			fail(c, statusFor(err), "Failed to release device group", err)
			return
		}
		webhooks.WithLabelValues("profiles", string(payload.Type), "ok").Inc()
		ok(c, "Profile deleted successfully", gin.H{"released": released})
	}
}

func nonNil(rows []domain.ScheduledNotification) []domain.ScheduledNotification {
	if rows == nil {
		return []domain.ScheduledNotification{}
	}
	return rows
}
