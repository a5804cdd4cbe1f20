package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"questkeeper_notifications/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const scheduleColumns = `id, task_id, title, message, user_id, scheduled_at, due_date, sent, created_at, attempted_at, last_status`

type ScheduleRepository struct {
	db *pgxpool.Pool
}

func NewScheduleRepository(db *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListByTask returns every row of a task, sent and unsent, oldest first.
func (r *ScheduleRepository) ListByTask(ctx context.Context, taskID int64) ([]domain.ScheduledNotification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM notification_schedule
		 WHERE task_id = $1
		 ORDER BY scheduled_at`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// GetByID returns domain.ErrNotFound when the row does not exist.
func (r *ScheduleRepository) GetByID(ctx context.Context, id int64) (*domain.ScheduledNotification, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM notification_schedule WHERE id = $1`,
		id,
	)
	n, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

// ListDue returns unsent, never attempted rows with from < scheduled_at <= until.
func (r *ScheduleRepository) ListDue(ctx context.Context, from, until time.Time, limit int) ([]domain.ScheduledNotification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM notification_schedule
		 WHERE NOT sent AND attempted_at IS NULL
		   AND scheduled_at > $1 AND scheduled_at <= $2
		 ORDER BY scheduled_at
		 LIMIT $3`,
		from, until, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// DeleteUnsentByTask removes pending rows of a task. Sent rows are history and stay.
func (r *ScheduleRepository) DeleteUnsentByTask(ctx context.Context, taskID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_schedule WHERE task_id = $1 AND NOT sent`,
		taskID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Upsert writes rows keyed by (task_id, scheduled_at) among unsent rows and
// returns them as stored.
func (r *ScheduleRepository) Upsert(ctx context.Context, items []domain.ScheduledNotification) ([]domain.ScheduledNotification, error) {
	if len(items) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, n := range items {
		batch.Queue(
			`INSERT INTO notification_schedule (task_id, title, message, user_id, scheduled_at, due_date)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (task_id, scheduled_at) WHERE NOT sent
			 DO UPDATE SET title = EXCLUDED.title,
			               message = EXCLUDED.message,
			               user_id = EXCLUDED.user_id,
			               due_date = EXCLUDED.due_date
			 RETURNING `+scheduleColumns,
			n.TaskID, n.Title, n.Message, n.UserID, n.ScheduledAt, n.DueDate,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	stored := make([]domain.ScheduledNotification, 0, len(items))
	for i := range items {
		n, err := scanSchedule(results.QueryRow())
		if err != nil {
			return stored, fmt.Errorf("upsert row %d: %w", i, err)
		}
		stored = append(stored, *n)
	}
	return stored, nil
}

// MarkSent flips sent to true. It reports 0 when the row was already sent or is gone.
func (r *ScheduleRepository) MarkSent(ctx context.Context, id int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_schedule SET sent = true WHERE id = $1 AND NOT sent`,
		id,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkAttempted records a delivery attempt that ended without a send so the
// row is not picked up again by ListDue. Sent rows are left alone.
func (r *ScheduleRepository) MarkAttempted(ctx context.Context, id int64, status domain.DeliveryStatus) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_schedule
		 SET attempted_at = now(), last_status = $2
		 WHERE id = $1 AND NOT sent`,
		id, string(status),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanSchedule(row pgx.Row) (*domain.ScheduledNotification, error) {
	var n domain.ScheduledNotification
	if err := row.Scan(
		&n.ID,
		&n.TaskID,
		&n.Title,
		&n.Message,
		&n.UserID,
		&n.ScheduledAt,
		&n.DueDate,
		&n.Sent,
		&n.CreatedAt,
		&n.AttemptedAt,
		&n.LastStatus,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

func scanSchedules(rows pgx.Rows) ([]domain.ScheduledNotification, error) {
	var res []domain.ScheduledNotification
	for rows.Next() {
		n, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *n)
	}
	return res, rows.Err()
}
