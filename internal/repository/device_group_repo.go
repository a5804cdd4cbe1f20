package repository

import (
	"context"
	"errors"

	"questkeeper_notifications/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DeviceGroupRepository struct {
	db *pgxpool.Pool
}

func NewDeviceGroupRepository(db *pgxpool.Pool) *DeviceGroupRepository {
	return &DeviceGroupRepository{db: db}
}

// Get returns domain.ErrNotFound when the user has no device group.
func (r *DeviceGroupRepository) Get(ctx context.Context, userID string) (*domain.DeviceGroupMapping, error) {
	var m domain.DeviceGroupMapping
	err := r.db.QueryRow(ctx,
		`SELECT user_id, device_group, created_at
		 FROM user_device_group
		 WHERE user_id = $1`,
		userID,
	).Scan(&m.UserID, &m.DeviceGroupKey, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Insert stores the mapping unless the user already has one; the returned
// count is 0 when a concurrent writer got there first.
func (r *DeviceGroupRepository) Insert(ctx context.Context, m domain.DeviceGroupMapping) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO user_device_group (user_id, device_group)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		m.UserID, m.DeviceGroupKey,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *DeviceGroupRepository) Delete(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_device_group WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
