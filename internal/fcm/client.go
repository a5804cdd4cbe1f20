package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"questkeeper_notifications/internal/domain"
)

const DefaultBaseURL = "https://fcm.googleapis.com"

// AccessTokens supplies bearer tokens for provider calls.
type AccessTokens interface {
	Token(ctx context.Context) (string, error)
}

// GroupStatus tells a fresh group apart from one another caller created first.
type GroupStatus int

const (
	GroupCreated GroupStatus = iota + 1
	GroupAlreadyExists
)

// GroupResult is the outcome of CreateGroup. Key is empty for GroupAlreadyExists;
// callers look it up by name.
type GroupResult struct {
	Status GroupStatus
	Key    string
}

// Client talks to the device group and v1 messaging APIs.
type Client struct {
	baseURL    string
	projectID  string
	tokens     AccessTokens
	httpClient *http.Client
}

// NewClient creates a new FCM client. timeout bounds every request.
func NewClient(baseURL, projectID string, tokens AccessTokens, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		tokens:    tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type groupRequest struct {
	Operation           string   `json:"operation"`
	NotificationKeyName string   `json:"notification_key_name"`
	NotificationKey     string   `json:"notification_key,omitempty"`
	RegistrationIDs     []string `json:"registration_ids"`
}

type groupResponse struct {
	NotificationKey string `json:"notification_key"`
}

// CreateGroup creates a device group named name holding tokens.
func (c *Client) CreateGroup(ctx context.Context, name string, tokens []string) (GroupResult, error) {
	var out groupResponse
	err := c.groupOp(ctx, groupRequest{
		Operation:           "create",
		NotificationKeyName: name,
		RegistrationIDs:     tokens,
	}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == ErrCodeKeyAlreadyExists {
			return GroupResult{Status: GroupAlreadyExists}, nil
		}
		return GroupResult{}, err
	}
	return GroupResult{Status: GroupCreated, Key: out.NotificationKey}, nil
}

// AddToGroup adds tokens to an existing group and returns its key.
func (c *Client) AddToGroup(ctx context.Context, name, key string, tokens []string) (string, error) {
	var out groupResponse
	err := c.groupOp(ctx, groupRequest{
		Operation:           "add",
		NotificationKeyName: name,
		NotificationKey:     key,
		RegistrationIDs:     tokens,
	}, &out)
	return out.NotificationKey, err
}

// RemoveFromGroup removes tokens from an existing group and returns its key.
func (c *Client) RemoveFromGroup(ctx context.Context, name, key string, tokens []string) (string, error) {
	var out groupResponse
	err := c.groupOp(ctx, groupRequest{
		Operation:           "remove",
		NotificationKeyName: name,
		NotificationKey:     key,
		RegistrationIDs:     tokens,
	}, &out)
	return out.NotificationKey, err
}

// LookupGroup returns the key of the group registered under name.
func (c *Client) LookupGroup(ctx context.Context, name string) (string, error) {
	u := c.baseURL + "/fcm/notification?notification_key_name=" + url.QueryEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	if err := c.authorize(ctx, req, true); err != nil {
		return "", err
	}

	var out groupResponse
	if err := c.do(req, "lookup group", &out); err != nil {
		return "", err
	}
	if out.NotificationKey == "" {
		return "", fmt.Errorf("%w: lookup group %s returned no key", domain.ErrProvider, name)
	}
	return out.NotificationKey, nil
}

type sendRequest struct {
	Message Message `json:"message"`
}

type sendResponse struct {
	Name string `json:"name"`
}

// Send delivers msg and returns the provider-assigned message name.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	u := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.baseURL, url.PathEscape(c.projectID))
	body, err := json.Marshal(sendRequest{Message: msg})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req, false); err != nil {
		return "", err
	}

	var out sendResponse
	if err := c.do(req, "send", &out); err != nil {
		return "", err
	}
	return out.Name, nil
}

func (c *Client) groupOp(ctx context.Context, body groupRequest, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fcm/notification", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req, true); err != nil {
		return err
	}

	return c.do(req, body.Operation+" group", out)
}

func (c *Client) authorize(ctx context.Context, req *http.Request, groupAPI bool) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if groupAPI {
		req.Header.Set("project_id", c.projectID)
		req.Header.Set("access_token_auth", "true")
	}
	return nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrProvider, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", domain.ErrProvider, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Code:       errorCode(body),
			Body:       string(body),
		}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", domain.ErrProvider, op, err)
	}
	return nil
}
