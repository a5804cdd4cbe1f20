package service

import (
	"context"
	"errors"
	"fmt"

	"questkeeper_notifications/internal/domain"
	"questkeeper_notifications/internal/fcm"
	"questkeeper_notifications/internal/logger"
)

// DeviceGroupStore persists the user to device group mapping.
type DeviceGroupStore interface {
	Get(ctx context.Context, userID string) (*domain.DeviceGroupMapping, error)
	Insert(ctx context.Context, m domain.DeviceGroupMapping) (int64, error)
	Delete(ctx context.Context, userID string) (int64, error)
}

// ProfileStore reads the upstream device-bearing rows.
type ProfileStore interface {
	CountWithToken(ctx context.Context, userID string) (int64, error)
}

// GroupProvider is the device group half of the push provider.
type GroupProvider interface {
	CreateGroup(ctx context.Context, name string, tokens []string) (fcm.GroupResult, error)
	AddToGroup(ctx context.Context, name, key string, tokens []string) (string, error)
	RemoveFromGroup(ctx context.Context, name, key string, tokens []string) (string, error)
	LookupGroup(ctx context.Context, name string) (string, error)
}

// Registry owns the mapping from a user to the multicast key covering all of
// the user's devices, and keeps it in step with the provider.
type Registry struct {
	groups   DeviceGroupStore
	profiles ProfileStore
	provider GroupProvider
}

// NewRegistry creates a new device group registry
func NewRegistry(groups DeviceGroupStore, profiles ProfileStore, provider GroupProvider) *Registry {
	return &Registry{
		groups:   groups,
		profiles: profiles,
		provider: provider,
	}
}

// Lookup returns the user's mapping or domain.ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, userID string) (*domain.DeviceGroupMapping, error) {
	m, err := r.groups.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("device group for user %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get device group: %w", domain.ErrStore, err)
	}
	return m, nil
}

// find is Lookup with "absent" reported as a nil mapping.
func (r *Registry) find(ctx context.Context, userID string) (*domain.DeviceGroupMapping, error) {
	m, err := r.Lookup(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// ReconcileDeviceToken makes sure the registered token belongs to the user's
// device group and returns the group key. Replays of an unchanged token cost
// no provider call.
func (r *Registry) ReconcileDeviceToken(ctx context.Context, change domain.DeviceRegistered) (string, error) {
	token := change.New.DeviceToken()
	if token == "" {
		return "", fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	userID := change.New.UserID
	if userID == "" {
		return "", fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}

	existing, err := r.find(ctx, userID)
	if err != nil {
		return "", err
	}

	var oldToken string
	if change.Old != nil {
		oldToken = change.Old.DeviceToken()
	}
	if change.Old != nil && oldToken == token && existing != nil {
		return existing.DeviceGroupKey, nil
	}

	log := logger.FromContext(ctx).With("user_id", userID)
	name := domain.DeviceGroupName(userID)

	if existing != nil {
		if _, err := r.provider.AddToGroup(ctx, name, existing.DeviceGroupKey, []string{token}); err != nil {
			deviceGroupOps.WithLabelValues("add", "error").Inc()
			return "", fmt.Errorf("add token to device group: %w", err)
		}
		deviceGroupOps.WithLabelValues("add", "ok").Inc()

		if oldToken != "" && oldToken != token {
			r.dropReplacedToken(ctx, name, existing.DeviceGroupKey, oldToken)
		}
		log.Info("device token added to group")
		return existing.DeviceGroupKey, nil
	}

	key, err := r.createGroup(ctx, name, token)
	if err != nil {
		return "", err
	}

	stored, err := r.persist(ctx, userID, key)
	if err != nil {
		return "", err
	}
	log.Info("device group registered", "device_group", stored)
	return stored, nil
}

// createGroup creates the group, or adopts the one a concurrent registration
// for the same user created first.
func (r *Registry) createGroup(ctx context.Context, name, token string) (string, error) {
	res, err := r.provider.CreateGroup(ctx, name, []string{token})
	if err != nil {
		deviceGroupOps.WithLabelValues("create", "error").Inc()
		return "", fmt.Errorf("create device group: %w", err)
	}

	switch res.Status {
	case fcm.GroupCreated:
		deviceGroupOps.WithLabelValues("create", "ok").Inc()
		return res.Key, nil
	case fcm.GroupAlreadyExists:
		deviceGroupOps.WithLabelValues("create", "already_exists").Inc()
		key, err := r.provider.LookupGroup(ctx, name)
		if err != nil {
			deviceGroupOps.WithLabelValues("lookup", "error").Inc()
			return "", fmt.Errorf("lookup existing device group: %w", err)
		}
		deviceGroupOps.WithLabelValues("lookup", "ok").Inc()
		// the token may not be in the adopted group yet
		if _, err := r.provider.AddToGroup(ctx, name, key, []string{token}); err != nil {
			deviceGroupOps.WithLabelValues("add", "error").Inc()
			return "", fmt.Errorf("add token to existing device group: %w", err)
		}
		deviceGroupOps.WithLabelValues("add", "ok").Inc()
		return key, nil
	default:
		return "", fmt.Errorf("%w: unexpected create group status %d", domain.ErrProvider, res.Status)
	}
}

// persist stores the first mapping for the user. When another writer won the
// insert, the stored key is returned so every caller converges on one row.
func (r *Registry) persist(ctx context.Context, userID, key string) (string, error) {
	n, err := r.groups.Insert(ctx, domain.DeviceGroupMapping{UserID: userID, DeviceGroupKey: key})
	if err != nil {
		return "", fmt.Errorf("%w: insert device group: %w", domain.ErrStore, err)
	}
	if n > 0 {
		return key, nil
	}

	stored, err := r.Lookup(ctx, userID)
	if err != nil {
		return "", err
	}
	if stored.DeviceGroupKey != key {
		logger.FromContext(ctx).Warn("device group key differs from stored mapping",
			"user_id", userID, "stored", stored.DeviceGroupKey, "provider", key)
	}
	return stored.DeviceGroupKey, nil
}

func (r *Registry) dropReplacedToken(ctx context.Context, name, key, token string) {
	if _, err := r.provider.RemoveFromGroup(ctx, name, key, []string{token}); err != nil {
		deviceGroupOps.WithLabelValues("remove", "error").Inc()
		logger.FromContext(ctx).Warn("failed to remove replaced device token", "group", name, "error", err)
		return
	}
	deviceGroupOps.WithLabelValues("remove", "ok").Inc()
}

// RemoveDeviceToken takes the deleted profile's token out of the user's group.
func (r *Registry) RemoveDeviceToken(ctx context.Context, change domain.DeviceRemoved) error {
	userID := change.Old.UserID
	existing, err := r.find(ctx, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: device group is required", domain.ErrValidation)
	}
	token := change.Old.DeviceToken()
	if token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}

	name := domain.DeviceGroupName(userID)
	if _, err := r.provider.RemoveFromGroup(ctx, name, existing.DeviceGroupKey, []string{token}); err != nil {
		deviceGroupOps.WithLabelValues("remove", "error").Inc()
		return fmt.Errorf("remove token from device group: %w", err)
	}
	deviceGroupOps.WithLabelValues("remove", "ok").Inc()
	return nil
}

// ReleaseIfUnused deletes the user's mapping once no device-bearing profile
// rows remain. It reports whether a mapping was deleted.
func (r *Registry) ReleaseIfUnused(ctx context.Context, userID string) (bool, error) {
	remaining, err := r.profiles.CountWithToken(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: count profiles: %w", domain.ErrStore, err)
	}
	if remaining > 0 {
		return false, nil
	}

	n, err := r.groups.Delete(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: delete device group: %w", domain.ErrStore, err)
	}
	if n > 0 {
		logger.FromContext(ctx).Info("device group released", "user_id", userID)
	}
	return n > 0, nil
}
