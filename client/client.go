// Package client talks to the medibot API over HTTP.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"git.0xdad.com/tblyler/medibot/backup"
	"git.0xdad.com/tblyler/medibot/notify"
)

// APIError is a failed API call
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client for the API
type Client struct {
	http *resty.Client
}

// New client for the API at baseURL
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetTimeout(30 * time.Second),
	}
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Error     string          `json:"error"`
	Processed int             `json:"processed"`
	Data      json.RawMessage `json:"data"`
}

func (e *envelope) text() string {
	if e.Message != "" {
		return e.Message
	}

	return e.Error
}

const maxRawMessage = 200

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	return c.send(c.http.R().SetContext(ctx), method, path, body)
}

func (c *Client) send(req *resty.Request, method, path string, body interface{}) (*envelope, error) {
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}

	raw := strings.TrimSpace(resp.String())

	out := &envelope{}
	if !strings.Contains(resp.Header().Get("Content-Type"), "json") || json.Unmarshal(resp.Body(), out) != nil {
		if len(raw) > maxRawMessage {
			raw = raw[:maxRawMessage]
		}

		if raw == "" {
			raw = http.StatusText(resp.StatusCode())
		}

		if !resp.IsSuccess() {
			return nil, &APIError{StatusCode: resp.StatusCode(), Message: raw}
		}

		return nil, fmt.Errorf("invalid response from %s %s: %s", method, path, raw)
	}

	if !resp.IsSuccess() || !out.Success {
		message := out.text()
		if message == "" {
			message = http.StatusText(resp.StatusCode())
		}

		return nil, &APIError{StatusCode: resp.StatusCode(), Message: message}
	}

	return out, nil
}

// ScheduleReminders replaces the server-side reminders of a medication
func (c *Client) ScheduleReminders(ctx context.Context, req backup.ScheduleRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/api/schedule-reminder", req)
	return err
}

// CancelReminders removes the server-side reminders of a medication
func (c *Client) CancelReminders(ctx context.Context, medicationID string) error {
	req := c.http.R().SetContext(ctx).SetQueryParam("medicationId", medicationID)
	_, err := c.send(req, http.MethodDelete, "/api/schedule-reminder", map[string]string{
		"medicationId": medicationID,
	})

	return err
}

// CheckReminders asks the server to deliver due reminders, returning how many it processed
func (c *Client) CheckReminders(ctx context.Context) (int, error) {
	out, err := c.do(ctx, http.MethodGet, "/api/check-reminders", nil)
	if err != nil {
		return 0, err
	}

	return out.Processed, nil
}

// SendPush through the API
func (c *Client) SendPush(ctx context.Context, msg notify.PushMessage) error {
	if msg.Token == "" {
		return notify.ErrNoPushToken
	}

	_, err := c.do(ctx, http.MethodPost, "/api/send-push", msg)

	return err
}

// SendEmail through the API
func (c *Client) SendEmail(ctx context.Context, msg notify.EmailMessage) (*notify.Receipt, error) {
	if err := notify.ValidateEmail(msg.To); err != nil {
		return nil, err
	}

	out, err := c.do(ctx, http.MethodPost, "/api/send-email", msg)
	if err != nil {
		return nil, err
	}

	receipt := &notify.Receipt{}
	if len(out.Data) > 0 {
		if err := json.Unmarshal(out.Data, receipt); err != nil {
			return nil, fmt.Errorf("invalid email receipt: %w", err)
		}
	}

	return receipt, nil
}
