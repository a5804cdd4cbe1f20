package service

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"questkeeper_notifications/internal/domain"
	"questkeeper_notifications/internal/logger"
)

// Reminder policy. Fixed for every user until per-user preferences exist.
var reminderOffsets = []time.Duration{0, 12 * time.Hour, 24 * time.Hour}

const (
	starredOffset    = 48 * time.Hour
	maxMessageLength = 75
)

// ScheduleStore is the schedule table as the scheduler sees it.
type ScheduleStore interface {
	ListByTask(ctx context.Context, taskID int64) ([]domain.ScheduledNotification, error)
	DeleteUnsentByTask(ctx context.Context, taskID int64) (int64, error)
	Upsert(ctx context.Context, items []domain.ScheduledNotification) ([]domain.ScheduledNotification, error)
}

// ScheduleResult describes what a task change did to the schedule.
type ScheduleResult struct {
	TaskID        int64                          `json:"task_id"`
	Notifications []domain.ScheduledNotification `json:"notifications"`
	Deleted       int64                          `json:"deleted"`
	// Cancelled is set when the task was deleted or completed and no reminders remain pending.
	Cancelled bool `json:"cancelled"`
	// Changed is false for replays and updates that touch no scheduling field.
	Changed bool `json:"changed"`
}

type Scheduler struct {
	store ScheduleStore
	now   func() time.Time
}

// NewScheduler creates a new notification scheduler
func NewScheduler(store ScheduleStore) *Scheduler {
	return &Scheduler{store: store, now: time.Now}
}

// ListForTask returns every schedule row of a task.
func (s *Scheduler) ListForTask(ctx context.Context, taskID int64) ([]domain.ScheduledNotification, error) {
	rows, err := s.store.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: list schedule: %w", domain.ErrStore, err)
	}
	return rows, nil
}

// ApplyTaskChange brings the task's pending reminders in line with the change.
// Deletion of stale rows always happens before new rows are written.
func (s *Scheduler) ApplyTaskChange(ctx context.Context, change domain.TaskChange) (ScheduleResult, error) {
	res := ScheduleResult{TaskID: change.TaskID()}
	log := logger.FromContext(ctx).With("task_id", res.TaskID)

	var task domain.Task
	switch c := change.(type) {
	case domain.TaskInserted:
		task = c.Task
	case domain.TaskUpdated:
		if c.Old != nil && !c.New.MateriallyDiffers(*c.Old) {
			rows, err := s.ListForTask(ctx, res.TaskID)
			if err != nil {
				return res, err
			}
			res.Notifications = rows
			log.Debug("task update does not affect reminders")
			return res, nil
		}
		task = c.New
		if err := s.clearPending(ctx, &res); err != nil {
			return res, err
		}
	case domain.TaskDeleted:
		if err := s.clearPending(ctx, &res); err != nil {
			return res, err
		}
		res.Cancelled = true
		log.Info("reminders cancelled", "reason", "deleted", "deleted", res.Deleted)
		return res, nil
	default:
		return res, fmt.Errorf("%w: unsupported task change %T", domain.ErrValidation, change)
	}

	res.Changed = true
	if task.Completed {
		res.Cancelled = true
		log.Info("reminders cancelled", "reason", "completed", "deleted", res.Deleted)
		return res, nil
	}

	rows := BuildSchedule(task, s.now())
	if len(rows) == 0 {
		return res, nil
	}

	stored, err := s.store.Upsert(ctx, rows)
	if err != nil {
		// rows deleted above stay deleted; the sender redelivers on failure
		return res, fmt.Errorf("%w: scheduling failed for task %d: %w", domain.ErrStore, task.ID, err)
	}
	scheduleRows.WithLabelValues("upserted").Add(float64(len(stored)))
	res.Notifications = stored

	log.Info("reminders scheduled", "count", len(stored), "deleted", res.Deleted)
	return res, nil
}

func (s *Scheduler) clearPending(ctx context.Context, res *ScheduleResult) error {
	n, err := s.store.DeleteUnsentByTask(ctx, res.TaskID)
	if err != nil {
		return fmt.Errorf("%w: delete pending reminders: %w", domain.ErrStore, err)
	}
	res.Deleted = n
	res.Changed = true
	scheduleRows.WithLabelValues("deleted").Add(float64(n))
	return nil
}

// ReminderTimes returns the send times for task that are still after now, earliest first.
func ReminderTimes(task domain.Task, now time.Time) []time.Time {
	if task.DueDate == nil {
		return nil
	}

	offsets := reminderOffsets
	if task.Starred {
		offsets = append(append([]time.Duration(nil), reminderOffsets...), starredOffset)
	}

	times := make([]time.Time, 0, len(offsets))
	for _, off := range offsets {
		at := task.DueDate.Add(-off)
		if !at.After(now) {
			continue
		}
		times = append(times, at)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// BuildSchedule turns a task into unsaved schedule rows.
func BuildSchedule(task domain.Task, now time.Time) []domain.ScheduledNotification {
	times := ReminderTimes(task, now)
	if len(times) == 0 {
		return nil
	}

	message := truncate(task.Description, maxMessageLength)
	rows := make([]domain.ScheduledNotification, 0, len(times))
	for _, at := range times {
		rows = append(rows, domain.ScheduledNotification{
			TaskID:      task.ID,
			Title:       task.Title,
			Message:     message,
			UserID:      task.UserID,
			ScheduledAt: at,
			DueDate:     *task.DueDate,
		})
	}
	return rows
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
