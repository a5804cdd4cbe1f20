package fcm

import (
	"encoding/json"
	"fmt"
	"strings"

	"questkeeper_notifications/internal/domain"
)

// ErrCodeKeyAlreadyExists is the error the device group API answers with when
// a create names a group that already exists.
const ErrCodeKeyAlreadyExists = "notification_key already exists"

// APIError is a non-2xx answer from the provider. It matches domain.ErrProvider.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("fcm %s: status %d: %s", e.Op, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("fcm %s: status %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *APIError) Unwrap() error {
	return domain.ErrProvider
}

// errorCode extracts the error text from either the legacy device group
// shape {"error":"..."} or the v1 shape {"error":{"message":"...","status":"..."}}.
func errorCode(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(env.Error, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Status
	}
	return ""
}
