package service

import (
	"context"
	"testing"
	"time"

	"questkeeper_notifications/internal/domain"
	"questkeeper_notifications/internal/fcm"
	"questkeeper_notifications/internal/service/servicetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	dispatcher *Dispatcher
	schedule   *servicetest.ScheduleStore
	groups     *servicetest.DeviceGroupStore
	provider   *servicetest.Provider
	claims     *servicetest.Claims
}

func newDispatchFixture() dispatchFixture {
	f := dispatchFixture{
		schedule: servicetest.NewScheduleStore(),
		groups:   servicetest.NewDeviceGroupStore(),
		provider: servicetest.NewProvider(),
		claims:   servicetest.NewClaims(),
	}
	registry := NewRegistry(f.groups, servicetest.NewProfileStore(), f.provider)
	f.dispatcher = NewDispatcher(f.schedule, registry, f.provider, f.claims)
	return f
}

func (f dispatchFixture) seed(userID string) int64 {
	return f.schedule.Seed(domain.ScheduledNotification{
		TaskID:      42,
		Title:       "Slay the dragon",
		Message:     "Bring a sword",
		UserID:      userID,
		ScheduledAt: time.Now().Add(-time.Minute),
		DueDate:     time.Now().Add(time.Hour),
	})
}

func TestSendScheduledDelivers(t *testing.T) {
	f := newDispatchFixture()
	f.groups.Put("u1", "key-1")
	id := f.seed("u1")

	res, err := f.dispatcher.SendScheduled(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliverySent, res.Status)
	assert.NotEmpty(t, res.MessageName)

	sent := f.provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, fcm.NotificationMessage("key-1", "Slay the dragon", "Bring a sword"), sent[0])

	n, err := f.schedule.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, n.Sent)
}

func TestSendScheduledWithoutDeviceGroup(t *testing.T) {
	f := newDispatchFixture()
	id := f.seed("nobody")

	res, err := f.dispatcher.SendScheduled(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.DeliverySkipped, res.Status)
	assert.Empty(t, f.provider.Calls())

	n, _ := f.schedule.GetByID(context.Background(), id)
	assert.False(t, n.Sent)
	require.NotNil(t, n.AttemptedAt)
	require.NotNil(t, n.LastStatus)
	assert.Equal(t, string(domain.DeliverySkipped), *n.LastStatus)
}

func TestSendScheduledStoreOutageIsFailure(t *testing.T) {
	f := newDispatchFixture()
	f.groups.Err = servicetest.ErrBoom
	id := f.seed("u1")

	res, err := f.dispatcher.SendScheduled(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorIs(t, err, servicetest.ErrBoom)
	assert.Equal(t, domain.DeliveryFailed, res.Status)
	assert.Empty(t, f.provider.Calls())

	// nothing was attempted, so the sweeper may pick the row up again
	n, _ := f.schedule.GetByID(context.Background(), id)
	assert.False(t, n.Sent)
	assert.Nil(t, n.AttemptedAt)
}

func TestSendScheduledUnknownRow(t *testing.T) {
	f := newDispatchFixture()
	_, err := f.dispatcher.SendScheduled(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.provider.Calls())
}

func TestAlreadySentIsNotResent(t *testing.T) {
	f := newDispatchFixture()
	f.groups.Put("u1", "key-1")
	id := f.seed("u1")

	_, err := f.dispatcher.SendScheduled(context.Background(), id)
	require.NoError(t, err)
	res, err := f.dispatcher.SendScheduled(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryAlreadySent, res.Status)
	assert.Len(t, f.provider.Sent(), 1)
}

func TestClaimedRowIsInFlight(t *testing.T) {
	f := newDispatchFixture()
	f.groups.Put("u1", "key-1")
	id := f.seed("u1")

	ok, err := f.claims.Claim(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := f.dispatcher.SendScheduled(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryInFlight, res.Status)
	assert.Empty(t, f.provider.Sent())
}

func TestProviderFailureLeavesRowPending(t *testing.T) {
	f := newDispatchFixture()
	f.groups.Put("u1", "key-1")
	f.provider.SendErr = &fcm.APIError{Op: "send", StatusCode: 500}
	id := f.seed("u1")

	res, err := f.dispatcher.SendScheduled(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, domain.DeliveryFailed, res.Status)
	assert.False(t, f.claims.Held(id), "claim released for the next trigger")

	n, _ := f.schedule.GetByID(context.Background(), id)
	assert.False(t, n.Sent)
	require.NotNil(t, n.LastStatus)
	assert.Equal(t, string(domain.DeliveryFailed), *n.LastStatus)

	// a manual trigger still retries the attempted row
	f.provider.SendErr = nil
	res, err = f.dispatcher.SendScheduled(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, res.Status)
}

func TestDispatchWithoutClaims(t *testing.T) {
	f := newDispatchFixture()
	f.groups.Put("u1", "key-1")
	registry := NewRegistry(f.groups, servicetest.NewProfileStore(), f.provider)
	d := NewDispatcher(f.schedule, registry, f.provider, nil)

	res, err := d.SendScheduled(context.Background(), f.seed("u1"))
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, res.Status)
}

func TestNotifyInApp(t *testing.T) {
	f := newDispatchFixture()
	f.groups.Put("u1", "key-1")

	res, err := f.dispatcher.NotifyInApp(context.Background(), "u1", map[string]string{"type": "refresh"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, res.Status)

	sent := f.provider.Sent()
	require.Len(t, sent, 1)
	assert.Nil(t, sent[0].Notification)
	assert.Equal(t, "refresh", sent[0].Data["type"])
	assert.Equal(t, "key-1", sent[0].Token)

	_, err = f.dispatcher.NotifyInApp(context.Background(), "", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.dispatcher.NotifyInApp(context.Background(), "u1", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.dispatcher.NotifyInApp(context.Background(), "nobody", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
