package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository reads the upstream profiles table; rows are written by
// the app backend, never by this service.
type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// CountWithToken returns how many device-bearing profile rows the user still has.
func (r *ProfileRepository) CountWithToken(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM profiles WHERE user_id = $1 AND token IS NOT NULL AND token <> ''`,
		userID,
	).Scan(&n)
	return n, err
}
