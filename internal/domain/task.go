package domain

import "time"

// Task is a snapshot of an upstream task row as delivered by the database webhook.
type Task struct {
	ID          int64      `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	DueDate     *time.Time `db:"due_date" json:"due_date"`
	Starred     bool       `db:"starred" json:"starred"`
	Completed   bool       `db:"completed" json:"completed"`
}

// MateriallyDiffers reports whether the change from old to t invalidates
// previously computed reminder rows.
func (t Task) MateriallyDiffers(old Task) bool {
	if !sameInstant(t.DueDate, old.DueDate) {
		return true
	}
	return t.Starred != old.Starred ||
		t.Title != old.Title ||
		t.Description != old.Description ||
		t.Completed != old.Completed
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
