package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDaemonUnavailable is returned when the daemon's API cannot be reached.
var ErrDaemonUnavailable = errors.New("sortbin daemon is not reachable")

// Client provides HTTP access to the daemon's management API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient targets the daemon listening on bind. Wildcard hosts are dialed
// on loopback.
func NewClient(bind, token string) (*Client, error) {
	base, err := BaseURL(bind)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// BaseURL converts a listen address into a dialable http URL.
func BaseURL(bind string) (string, error) {
	bind = strings.TrimSpace(bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/"), nil
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("parse api bind %q: %w", bind, err)
	}
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// Status retrieves daemon status including the live session.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Session retrieves the live session view.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var resp Session
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartSession begins a new disposal session.
func (c *Client) StartSession(ctx context.Context) (*Session, error) {
	var resp Session
	if err := c.do(ctx, http.MethodPost, "/api/session/start", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitIdentity sends an utterance or a pre-resolved identity.
func (c *Client) SubmitIdentity(ctx context.Context, req IdentityRequest) (*IdentityResponse, error) {
	var resp IdentityResponse
	if err := c.do(ctx, http.MethodPost, "/api/identity", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Users lists every ledger user.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var resp UserListResponse
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// User retrieves one user and their recent disposals. A limit of zero uses
// the daemon default.
func (c *Client) User(ctx context.Context, name string, limit int) (*UserDetailResponse, error) {
	path := "/api/users/" + url.PathEscape(name)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp UserDetailResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HTTPError is a non-2xx API response.
type HTTPError struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *HTTPError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api returned %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		var opErr *net.OpError
		if errors.As(err, &opErr) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
		}
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error, Kind: apiErr.Kind}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (*NotificationResponse, error) {
	var resp NotificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
