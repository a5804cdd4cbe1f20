package domain

import (
	"strings"
	"time"
)

// DeviceGroupMapping binds a user to the provider-issued multicast key
// covering all of the user's registered devices.
type DeviceGroupMapping struct {
	UserID         string    `db:"user_id" json:"user_id"`
	DeviceGroupKey string    `db:"device_group" json:"device_group"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Profile is the upstream device-bearing row; one per registered device.
type Profile struct {
	ID     int64   `db:"id" json:"id"`
	UserID string  `db:"user_id" json:"user_id"`
	Token  *string `db:"token" json:"token"`
}

// DeviceToken returns the trimmed token, empty when absent.
func (p Profile) DeviceToken() string {
	if p.Token == nil {
		return ""
	}
	return strings.TrimSpace(*p.Token)
}

// DeviceGroupName is the provider-side group name for a user. Every replica
// derives the same name so lookups by name converge on one group.
func DeviceGroupName(userID string) string {
	return "appUser~" + userID
}
