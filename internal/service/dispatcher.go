package service

import (
	"context"
	"errors"
	"fmt"

	"questkeeper_notifications/internal/domain"
	"questkeeper_notifications/internal/fcm"
	"questkeeper_notifications/internal/logger"
)

// ScheduleReader loads and completes schedule rows for the dispatcher.
type ScheduleReader interface {
	GetByID(ctx context.Context, id int64) (*domain.ScheduledNotification, error)
	MarkSent(ctx context.Context, id int64) (int64, error)
	MarkAttempted(ctx context.Context, id int64, status domain.DeliveryStatus) (int64, error)
}

// GroupResolver resolves a user's device group; Registry implements it.
type GroupResolver interface {
	Lookup(ctx context.Context, userID string) (*domain.DeviceGroupMapping, error)
}

// MessageSender is the send half of the push provider.
type MessageSender interface {
	Send(ctx context.Context, msg fcm.Message) (string, error)
}

// Claimer guards a row against concurrent sends. Optional.
type Claimer interface {
	Claim(ctx context.Context, id int64) (bool, error)
	Release(ctx context.Context, id int64) error
}

type Dispatcher struct {
	schedule ScheduleReader
	groups   GroupResolver
	sender   MessageSender
	claims   Claimer
}

// NewDispatcher creates a new dispatcher. claims may be nil.
func NewDispatcher(schedule ScheduleReader, groups GroupResolver, sender MessageSender, claims Claimer) *Dispatcher {
	return &Dispatcher{
		schedule: schedule,
		groups:   groups,
		sender:   sender,
		claims:   claims,
	}
}

// SendScheduled delivers one schedule row to its owner's device group.
func (d *Dispatcher) SendScheduled(ctx context.Context, id int64) (domain.DeliveryResult, error) {
	n, err := d.schedule.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.DeliveryResult{NotificationID: id, Status: domain.DeliverySkipped, Reason: "notification not found"},
				fmt.Errorf("notification %d: %w", id, domain.ErrNotFound)
		}
		return domain.DeliveryResult{NotificationID: id, Status: domain.DeliveryFailed},
			fmt.Errorf("%w: get notification: %w", domain.ErrStore, err)
	}
	return d.Deliver(ctx, *n)
}

// Deliver sends an already loaded row. The row is marked sent only after the
// provider accepted the message.
func (d *Dispatcher) Deliver(ctx context.Context, n domain.ScheduledNotification) (domain.DeliveryResult, error) {
	res := domain.DeliveryResult{NotificationID: n.ID, UserID: n.UserID}
	log := logger.FromContext(ctx).With("notification_id", n.ID, "user_id", n.UserID)

	if n.Sent {
		res.Status = domain.DeliveryAlreadySent
		return res, nil
	}

	group, err := d.groups.Lookup(ctx, n.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			// store outage: nothing was attempted, the row stays eligible
			res.Status = domain.DeliveryFailed
			res.Reason = err.Error()
			deliveries.WithLabelValues("notification", string(res.Status)).Inc()
			return res, err
		}
		res.Status = domain.DeliverySkipped
		res.Reason = "user has no registered devices"
		deliveries.WithLabelValues("notification", string(res.Status)).Inc()
		d.markAttempted(ctx, n.ID, res.Status)
		log.Info("delivery skipped, no device group")
		return res, err
	}

	if d.claims != nil {
		ok, err := d.claims.Claim(ctx, n.ID)
		switch {
		case err != nil:
			log.Warn("dispatch claim unavailable, sending unguarded", "error", err)
		case !ok:
			res.Status = domain.DeliveryInFlight
			return res, nil
		}
	}

	name, err := d.sender.Send(ctx, fcm.NotificationMessage(group.DeviceGroupKey, n.Title, n.Message))
	if err != nil {
		res.Status = domain.DeliveryFailed
		d.markAttempted(ctx, n.ID, res.Status)
		d.release(ctx, n.ID)
		res.Reason = err.Error()
		deliveries.WithLabelValues("notification", string(res.Status)).Inc()
		log.Warn("push delivery failed", "error", err)
		return res, fmt.Errorf("deliver notification %d: %w", n.ID, err)
	}
	res.Status = domain.DeliverySent
	res.MessageName = name
	deliveries.WithLabelValues("notification", string(res.Status)).Inc()

	marked, err := d.schedule.MarkSent(ctx, n.ID)
	if err != nil {
		// the claim stays until its TTL so an immediate retrigger does not resend
		return res, fmt.Errorf("%w: mark notification %d sent: %w", domain.ErrStore, n.ID, err)
	}
	if marked == 0 {
		log.Warn("notification was already marked sent")
	}

	log.Info("push delivered", "message", name)
	return res, nil
}

// NotifyInApp sends a data message that the app handles itself, without a visible alert.
func (d *Dispatcher) NotifyInApp(ctx context.Context, userID string, data map[string]string) (domain.DeliveryResult, error) {
	res := domain.DeliveryResult{UserID: userID}
	if userID == "" {
		res.Status = domain.DeliverySkipped
		return res, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if len(data) == 0 {
		res.Status = domain.DeliverySkipped
		return res, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	group, err := d.groups.Lookup(ctx, userID)
	if err != nil {
		res.Status = domain.DeliverySkipped
		return res, err
	}

	name, err := d.sender.Send(ctx, fcm.DataMessage(group.DeviceGroupKey, data))
	if err != nil {
		res.Status = domain.DeliveryFailed
		res.Reason = err.Error()
		deliveries.WithLabelValues("data", string(res.Status)).Inc()
		return res, fmt.Errorf("deliver data message: %w", err)
	}

	res.Status = domain.DeliverySent
	res.MessageName = name
	deliveries.WithLabelValues("data", string(res.Status)).Inc()
	return res, nil
}

// markAttempted takes a row out of the due sweep after a skip or failure.
// Failing to record it only means the sweeper may see the row once more.
func (d *Dispatcher) markAttempted(ctx context.Context, id int64, status domain.DeliveryStatus) {
	if _, err := d.schedule.MarkAttempted(ctx, id, status); err != nil {
		logger.FromContext(ctx).Warn("failed to record delivery attempt", "notification_id", id, "status", status, "error", err)
	}
}

func (d *Dispatcher) release(ctx context.Context, id int64) {
	if d.claims == nil {
		return
	}
	if err := d.claims.Release(ctx, id); err != nil {
		logger.FromContext(ctx).Warn("failed to release dispatch claim", "notification_id", id, "error", err)
	}
}
