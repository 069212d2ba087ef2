package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// NetworkError means the request never got an HTTP response: DNS, connect,
// reset, or a deadline expiring on the way.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteError is a response the backend produced but did not accept: a 5xx,
// an unexpected 4xx, or ok=false without a conflict.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *RemoteError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// DeviceHeader carries the device ID on every request.
const DeviceHeader = "X-Device-ID"

// Client is an HTTP client for the mutation backend.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Mutation is the body of POST /v1/mutations.
type Mutation struct {
	MutationID string          `json:"mutation_id"`
	DeviceID   string          `json:"device_id"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	Force      bool            `json:"force,omitempty"`
}

// Conflict describes a newer remote version of the mutated record.
type Conflict struct {
	RemoteUpdatedAt string          `json:"remote_updated_at"`
	RemotePayload   json.RawMessage `json:"remote_payload"`
}

// MutationResponse is the backend's verdict on one mutation.
type MutationResponse struct {
	OK        bool      `json:"ok"`
	ServerKey string    `json:"server_key,omitempty"`
	Conflict  *Conflict `json:"conflict,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if _, err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send posts one mutation. A conflict comes back as a response with
// Conflict set, not as an error; ok=false without a conflict is returned as
// a *RemoteError.
func (c *Client) Send(ctx context.Context, m Mutation) (*MutationResponse, error) {
	if m.DeviceID == "" {
		m.DeviceID = c.DeviceID
	}
	var resp MutationResponse
	status, err := c.doRequest(ctx, http.MethodPost, "/v1/mutations", m, &resp, true)
	if err != nil {
		return nil, err
	}
	if !resp.OK && resp.Conflict == nil {
		return nil, &RemoteError{Status: status, Code: "rejected", Message: resp.Error}
	}
	return &resp, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// accepted lists the statuses whose body is a MutationResponse.
func accepted(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set(DeviceHeader, c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &NetworkError{Op: "read response", Err: err}
	}

	if !accepted(resp.StatusCode) && resp.StatusCode >= 300 {
		var envelope struct {
			Error apiError `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Code != "" {
			msg = envelope.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return resp.StatusCode, fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusForbidden:
			return resp.StatusCode, fmt.Errorf("%w: %s", ErrForbidden, msg)
		case http.StatusNotFound:
			return resp.StatusCode, fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return resp.StatusCode, &RemoteError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: msg}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return resp.StatusCode, &RemoteError{Status: resp.StatusCode, Code: "bad_response",
				Message: fmt.Sprintf("unmarshal response: %v", err)}
		}
	}
	return resp.StatusCode, nil
}
