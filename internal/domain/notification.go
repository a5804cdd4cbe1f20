package domain

import "time"

// ScheduledNotification is one reminder row in notification_schedule.
type ScheduledNotification struct {
	ID          int64     `db:"id" json:"id"`
	TaskID      int64     `db:"task_id" json:"task_id"`
	Title       string    `db:"title" json:"title"`
	Message     string    `db:"message" json:"message"`
	UserID      string    `db:"user_id" json:"user_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	Sent        bool      `db:"sent" json:"sent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	// AttemptedAt and LastStatus are set when a delivery attempt ended without
	// a send (skipped or failed).
	AttemptedAt *time.Time `db:"attempted_at" json:"attempted_at,omitempty"`
	LastStatus  *string    `db:"last_status" json:"last_status,omitempty"`
}

// DeliveryStatus describes the outcome of a single dispatch attempt.
type DeliveryStatus string

const (
	DeliverySent        DeliveryStatus = "sent"
	DeliveryFailed      DeliveryStatus = "failed"
	DeliverySkipped     DeliveryStatus = "skipped"
	DeliveryAlreadySent DeliveryStatus = "already_sent"
	DeliveryInFlight    DeliveryStatus = "in_flight"
)

// DeliveryResult is returned by the dispatcher for every attempt.
type DeliveryResult struct {
	NotificationID int64          `json:"notification_id,omitempty"`
	UserID         string         `json:"user_id"`
	Status         DeliveryStatus `json:"status"`
	MessageName    string         `json:"message_name,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}
