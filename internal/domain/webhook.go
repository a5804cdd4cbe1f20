package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WebhookType is the database operation that produced a webhook.
type WebhookType string

const (
	WebhookInsert WebhookType = "INSERT"
	WebhookUpdate WebhookType = "UPDATE"
	WebhookDelete WebhookType = "DELETE"
)

// WebhookPayload is the raw body posted by the database webhook sender.
type WebhookPayload struct {
	Type      WebhookType     `json:"type"`
	Table     string          `json:"table"`
	Schema    string          `json:"schema"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

// TaskChange is one of TaskInserted, TaskUpdated or TaskDeleted.
type TaskChange interface {
	TaskID() int64
	isTaskChange()
}

type TaskInserted struct {
	Task Task
}

// TaskUpdated carries the previous snapshot when the sender provided one.
type TaskUpdated struct {
	Old *Task
	New Task
}

type TaskDeleted struct {
	Old Task
}

func (c TaskInserted) TaskID() int64 { return c.Task.ID }
func (c TaskUpdated) TaskID() int64  { return c.New.ID }
func (c TaskDeleted) TaskID() int64  { return c.Old.ID }

func (TaskInserted) isTaskChange() {}
func (TaskUpdated) isTaskChange()  {}
func (TaskDeleted) isTaskChange()  {}

// ProfileChange is one of DeviceRegistered or DeviceRemoved.
type ProfileChange interface {
	UserID() string
	isProfileChange()
}

// DeviceRegistered is an inserted or updated profile row.
type DeviceRegistered struct {
	Old *Profile
	New Profile
}

// DeviceRemoved is a deleted profile row.
type DeviceRemoved struct {
	Old Profile
}

func (c DeviceRegistered) UserID() string { return c.New.UserID }
func (c DeviceRemoved) UserID() string    { return c.Old.UserID }

func (DeviceRegistered) isProfileChange() {}
func (DeviceRemoved) isProfileChange()    {}

// TaskChange decodes the payload into its task variant.
func (p WebhookPayload) TaskChange() (TaskChange, error) {
	switch p.Type {
	case WebhookInsert:
		t, err := decodeTask(p.Record)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		return TaskInserted{Task: *t}, nil
	case WebhookUpdate:
		t, err := decodeTask(p.Record)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		change := TaskUpdated{New: *t}
		if present(p.OldRecord) {
			old, err := decodeTask(p.OldRecord)
			if err != nil {
				return nil, fmt.Errorf("old_record: %w", err)
			}
			change.Old = old
		}
		return change, nil
	case WebhookDelete:
		old, err := decodeTask(p.OldRecord)
		if err != nil {
			return nil, fmt.Errorf("old_record: %w", err)
		}
		return TaskDeleted{Old: *old}, nil
	default:
		return nil, fmt.Errorf("%w: invalid type %q", ErrValidation, p.Type)
	}
}

// ProfileChange decodes the payload into its profile variant.
func (p WebhookPayload) ProfileChange() (ProfileChange, error) {
	switch p.Type {
	case WebhookInsert, WebhookUpdate:
		rec, err := decodeProfile(p.Record)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		change := DeviceRegistered{New: *rec}
		if present(p.OldRecord) {
			old, err := decodeProfile(p.OldRecord)
			if err != nil {
				return nil, fmt.Errorf("old_record: %w", err)
			}
			change.Old = old
		}
		return change, nil
	case WebhookDelete:
		old, err := decodeProfile(p.OldRecord)
		if err != nil {
			return nil, fmt.Errorf("old_record: %w", err)
		}
		return DeviceRemoved{Old: *old}, nil
	default:
		return nil, fmt.Errorf("%w: invalid type %q", ErrValidation, p.Type)
	}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// taskRecord mirrors Task but keeps due_date as text; the webhook sender
// emits Postgres timestamp formats that are not always RFC 3339.
type taskRecord struct {
	ID          int64   `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
	Starred     bool    `json:"starred"`
	Completed   bool    `json:"completed"`
}

func decodeTask(raw json.RawMessage) (*Task, error) {
	if !present(raw) {
		return nil, fmt.Errorf("%w: task record is required", ErrValidation)
	}
	var rec taskRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if rec.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}

	t := &Task{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Title:     rec.Title,
		Starred:   rec.Starred,
		Completed: rec.Completed,
	}
	if rec.Description != nil {
		t.Description = *rec.Description
	}
	if rec.DueDate != nil && strings.TrimSpace(*rec.DueDate) != "" {
		due, err := ParseTimestamp(*rec.DueDate)
		if err != nil {
			return nil, fmt.Errorf("%w: due_date: %v", ErrValidation, err)
		}
		t.DueDate = &due
	}
	return t, nil
}

func decodeProfile(raw json.RawMessage) (*Profile, error) {
	if !present(raw) {
		return nil, fmt.Errorf("%w: profile record is required", ErrValidation)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	return &p, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 and the textual forms Postgres uses for
// timestamp and timestamptz. Values without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
