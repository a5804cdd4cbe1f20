package fcm

import (
	"errors"
)

// Notification is the user-visible part of a notification-type message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type AndroidConfig struct {
	Priority string `json:"priority,omitempty"`
}

type APNSConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload map[string]any    `json:"payload,omitempty"`
}

// Message is a v1 send request addressed to a device group key.
type Message struct {
	Token        string            `json:"token"`
	Notification *Notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
}

// NotificationMessage is displayed directly by the operating system.
func NotificationMessage(deviceGroupKey, title, body string) Message {
	return Message{
		Token:        deviceGroupKey,
		Notification: &Notification{Title: title, Body: body},
	}
}

// DataMessage is handed to the application without a visible alert. It is
// flagged for background delivery so it can wake the app.
func DataMessage(deviceGroupKey string, data map[string]string) Message {
	return Message{
		Token: deviceGroupKey,
		Data:  data,
		Android: &AndroidConfig{
			Priority: "high",
		},
		APNS: &APNSConfig{
			Headers: map[string]string{
				"apns-push-type": "background",
				"apns-priority":  "5",
			},
			Payload: map[string]any{
				"aps": map[string]any{"content-available": 1},
			},
		},
	}
}

// Validate checks that the message has a target and exactly one kind of content.
func (m Message) Validate() error {
	if m.Token == "" {
		return errors.New("message target is required")
	}
	if m.Notification == nil && len(m.Data) == 0 {
		return errors.New("notification or data message is required")
	}
	if m.Notification != nil && len(m.Data) > 0 {
		return errors.New("message must be either notification or data")
	}
	return nil
}
