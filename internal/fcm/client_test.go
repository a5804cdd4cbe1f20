package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"questkeeper_notifications/internal/domain"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }

// fakeFCM implements just enough of the device group and v1 send APIs.
type fakeFCM struct {
	t      *testing.T
	mu     sync.Mutex
	groups map[string]string // name -> key
	sent   []Message
	fail   int // status code for every request when non-zero
}

func newFakeFCM(t *testing.T) (*fakeFCM, *Client) {
	f := &fakeFCM{t: t, groups: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, NewClient(srv.URL, "questkeeper", staticTokens("tok"), 5*time.Second)
}

func (f *fakeFCM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if got := r.Header.Get("Authorization"); got != "Bearer tok" {
		f.t.Errorf("Authorization = %q", got)
	}
	if f.fail != 0 {
		w.WriteHeader(f.fail)
		w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable","status":"UNAVAILABLE"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/fcm/notification":
		if r.Header.Get("project_id") != "questkeeper" || r.Header.Get("access_token_auth") != "true" {
			f.t.Errorf("missing device group headers: %v", r.Header)
		}
		if r.Method == http.MethodGet {
			key, ok := f.groups[r.URL.Query().Get("notification_key_name")]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"notification_key not found"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"notification_key": key})
			return
		}
		var req groupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode group request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch req.Operation {
		case "create":
			if _, ok := f.groups[req.NotificationKeyName]; ok {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"notification_key already exists"}`))
				return
			}
			f.groups[req.NotificationKeyName] = "key-" + req.NotificationKeyName
		case "add", "remove":
			if f.groups[req.NotificationKeyName] != req.NotificationKey {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"notification_key not found"}`))
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"notification_key": f.groups[req.NotificationKeyName]})

	case r.URL.Path == "/v1/projects/questkeeper/messages:send" && r.Method == http.MethodPost:
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode send request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.sent = append(f.sent, req.Message)
		w.Write([]byte(`{"name":"projects/questkeeper/messages/1"}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeFCM) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func (f *fakeFCM) failWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = status
}

func TestCreateGroupThenAlreadyExists(t *testing.T) {
	_, c := newFakeFCM(t)
	ctx := context.Background()

	res, err := c.CreateGroup(ctx, "appUser~u1", []string{"t1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Status != GroupCreated || res.Key != "key-appUser~u1" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = c.CreateGroup(ctx, "appUser~u1", []string{"t2"})
	if err != nil {
		t.Fatalf("second create should not error: %v", err)
	}
	if res.Status != GroupAlreadyExists || res.Key != "" {
		t.Fatalf("expected GroupAlreadyExists, got %+v", res)
	}

	key, err := c.LookupGroup(ctx, "appUser~u1")
	if err != nil || key != "key-appUser~u1" {
		t.Fatalf("lookup: %q %v", key, err)
	}
}

func TestGroupAddRemove(t *testing.T) {
	_, c := newFakeFCM(t)
	ctx := context.Background()

	if _, err := c.CreateGroup(ctx, "appUser~u2", []string{"t1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	key, err := c.AddToGroup(ctx, "appUser~u2", "key-appUser~u2", []string{"t2"})
	if err != nil || key != "key-appUser~u2" {
		t.Fatalf("add: %q %v", key, err)
	}
	if _, err := c.RemoveFromGroup(ctx, "appUser~u2", "key-appUser~u2", []string{"t1"}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, err = c.AddToGroup(ctx, "appUser~u2", "stale", []string{"t3"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider for stale key, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "notification_key not found" {
		t.Fatalf("expected provider error code, got %v", err)
	}
}

func TestLookupMissingGroup(t *testing.T) {
	_, c := newFakeFCM(t)
	if _, err := c.LookupGroup(context.Background(), "appUser~nobody"); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestSendNotificationMessage(t *testing.T) {
	f, c := newFakeFCM(t)

	name, err := c.Send(context.Background(), NotificationMessage("key-1", "Quest due", "Slay the dragon"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if name != "projects/questkeeper/messages/1" {
		t.Errorf("name = %q", name)
	}
	sent := f.messages()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	got := sent[0]
	if got.Token != "key-1" || got.Notification == nil || got.Notification.Title != "Quest due" || got.Data != nil {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestSendDataMessageFlags(t *testing.T) {
	f, c := newFakeFCM(t)

	if _, err := c.Send(context.Background(), DataMessage("key-1", map[string]string{"kind": "sync"})); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := f.messages()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	got := sent[0]
	if got.Notification != nil || got.Data["kind"] != "sync" {
		t.Errorf("unexpected message %+v", got)
	}
	if got.Android == nil || got.Android.Priority != "high" {
		t.Errorf("android priority missing: %+v", got.Android)
	}
	if got.APNS == nil || got.APNS.Headers["apns-push-type"] != "background" {
		t.Fatalf("apns headers missing: %+v", got.APNS)
	}
	aps, _ := got.APNS.Payload["aps"].(map[string]any)
	if aps["content-available"] != float64(1) {
		t.Errorf("content-available = %v", aps["content-available"])
	}
}

func TestSendRejectsInvalidMessage(t *testing.T) {
	f, c := newFakeFCM(t)

	_, err := c.Send(context.Background(), Message{Token: "key-1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(f.messages()) != 0 {
		t.Fatal("invalid message must not reach the provider")
	}
}

func TestProviderErrorsWrapErrProvider(t *testing.T) {
	f, c := newFakeFCM(t)
	f.failWith(http.StatusServiceUnavailable)

	_, err := c.Send(context.Background(), NotificationMessage("key-1", "t", "b"))
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "backend unavailable" || apiErr.StatusCode != 503 {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "questkeeper", staticTokens("tok"), 50*time.Millisecond)
	_, err := c.Send(context.Background(), NotificationMessage("key-1", "t", "b"))
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider on timeout, got %v", err)
	}
}
