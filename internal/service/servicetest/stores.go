// Package servicetest provides in-memory stores and a fake push provider for
// exercising the services without Postgres or FCM.
package servicetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"questkeeper_notifications/internal/domain"
)

// ScheduleStore is an in-memory notification_schedule table with the same
// pending-row uniqueness as the real one.
type ScheduleStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.ScheduledNotification

	// FailUpsert and FailDelete make the next matching call return an error.
	FailUpsert error
	FailDelete error
}

func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{rows: map[int64]domain.ScheduledNotification{}}
}

// Seed inserts a row as-is and returns its id.
func (s *ScheduleStore) Seed(n domain.ScheduledNotification) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	n.ID = s.nextID
	s.rows[n.ID] = n
	return n.ID
}

// All returns every row ordered by id.
func (s *ScheduleStore) All() []domain.ScheduledNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScheduledNotification, 0, len(s.rows))
	for _, n := range s.rows {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *ScheduleStore) ListByTask(_ context.Context, taskID int64) ([]domain.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScheduledNotification
	for _, n := range s.rows {
		if n.TaskID == taskID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *ScheduleStore) GetByID(_ context.Context, id int64) (*domain.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &n, nil
}

func (s *ScheduleStore) ListDue(_ context.Context, from, until time.Time, limit int) ([]domain.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScheduledNotification
	for _, n := range s.rows {
		if !n.Sent && n.AttemptedAt == nil && n.ScheduledAt.After(from) && !n.ScheduledAt.After(until) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ScheduleStore) DeleteUnsentByTask(_ context.Context, taskID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailDelete; err != nil {
		s.FailDelete = nil
		return 0, err
	}
	var n int64
	for id, row := range s.rows {
		if row.TaskID == taskID && !row.Sent {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *ScheduleStore) Upsert(_ context.Context, items []domain.ScheduledNotification) ([]domain.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailUpsert; err != nil {
		s.FailUpsert = nil
		return nil, err
	}

	stored := make([]domain.ScheduledNotification, 0, len(items))
	for _, item := range items {
		var existing *domain.ScheduledNotification
		for id, row := range s.rows {
			if !row.Sent && row.TaskID == item.TaskID && row.ScheduledAt.Equal(item.ScheduledAt) {
				r := s.rows[id]
				existing = &r
				break
			}
		}
		if existing != nil {
			existing.Title = item.Title
			existing.Message = item.Message
			existing.UserID = item.UserID
			existing.DueDate = item.DueDate
			s.rows[existing.ID] = *existing
			stored = append(stored, *existing)
			continue
		}
		s.nextID++
		item.ID = s.nextID
		item.Sent = false
		item.CreatedAt = time.Now()
		s.rows[item.ID] = item
		stored = append(stored, item)
	}
	return stored, nil
}

func (s *ScheduleStore) MarkSent(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok || n.Sent {
		return 0, nil
	}
	n.Sent = true
	s.rows[id] = n
	return 1, nil
}

func (s *ScheduleStore) MarkAttempted(_ context.Context, id int64, status domain.DeliveryStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok || n.Sent {
		return 0, nil
	}
	now := time.Now()
	last := string(status)
	n.AttemptedAt = &now
	n.LastStatus = &last
	s.rows[id] = n
	return 1, nil
}

// DeviceGroupStore is an in-memory user_device_group table.
type DeviceGroupStore struct {
	mu   sync.Mutex
	rows map[string]domain.DeviceGroupMapping

	// BeforeInsert, when set, runs before every insert; tests use it to
	// simulate a concurrent writer.
	BeforeInsert func()
	// Err fails every Get.
	Err error
}

func NewDeviceGroupStore() *DeviceGroupStore {
	return &DeviceGroupStore{rows: map[string]domain.DeviceGroupMapping{}}
}

// Put stores a mapping directly.
func (s *DeviceGroupStore) Put(userID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[userID] = domain.DeviceGroupMapping{UserID: userID, DeviceGroupKey: key, CreatedAt: time.Now()}
}

func (s *DeviceGroupStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *DeviceGroupStore) Get(_ context.Context, userID string) (*domain.DeviceGroupMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.rows[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (s *DeviceGroupStore) Insert(_ context.Context, m domain.DeviceGroupMapping) (int64, error) {
	if s.BeforeInsert != nil {
		s.BeforeInsert()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[m.UserID]; ok {
		return 0, nil
	}
	m.CreatedAt = time.Now()
	s.rows[m.UserID] = m
	return 1, nil
}

func (s *DeviceGroupStore) Delete(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[userID]; !ok {
		return 0, nil
	}
	delete(s.rows, userID)
	return 1, nil
}

// ProfileStore counts device-bearing profiles per user.
type ProfileStore struct {
	mu     sync.Mutex
	counts map[string]int64
	Err    error
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{counts: map[string]int64{}}
}

func (s *ProfileStore) Set(userID string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[userID] = n
}

func (s *ProfileStore) CountWithToken(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return s.counts[userID], nil
}

// Claims is an in-memory dispatch claim set.
type Claims struct {
	mu   sync.Mutex
	held map[int64]bool
	Err  error
}

func NewClaims() *Claims {
	return &Claims{held: map[int64]bool{}}
}

func (c *Claims) Claim(_ context.Context, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return false, c.Err
	}
	if c.held[id] {
		return false, nil
	}
	c.held[id] = true
	return true, nil
}

func (c *Claims) Release(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, id)
	return nil
}

func (c *Claims) Held(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held[id]
}

// ErrBoom is a generic injected failure.
var ErrBoom = errors.New("boom")
