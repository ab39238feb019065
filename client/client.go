package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"papertrade/model"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// Client calls the REST API on behalf of one signed-in user.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type session struct {
	Token string        `json:"token"`
	User  model.Profile `json:"user"`
}

// Login signs in and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (model.Profile, error) {
	var s session
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &s)
	if err != nil {
		return model.Profile{}, err
	}
	c.SetToken(s.Token)
	return s.User, nil
}

func (c *Client) Signup(ctx context.Context, name, email, password string) (model.Profile, error) {
	var s session
	err := c.do(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": name,
		"email":    email,
		"password": password,
	}, &s)
	if err != nil {
		return model.Profile{}, err
	}
	c.SetToken(s.Token)
	return s.User, nil
}

func (c *Client) Stocks(ctx context.Context) ([]model.Quote, error) {
	var quotes []model.Quote
	if err := c.do(ctx, http.MethodGet, "/api/stocks", nil, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (c *Client) Alerts(ctx context.Context) ([]model.Alert, error) {
	var list []model.Alert
	if err := c.do(ctx, http.MethodGet, "/api/alerts", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkTriggered reports a locally fired alert. The server disarms it and
// broadcasts alert_triggered to every feed connection.
func (c *Client) MarkTriggered(ctx context.Context, id string) (model.Alert, error) {
	var alert model.Alert
	err := c.do(ctx, http.MethodPatch, "/api/alerts/"+url.PathEscape(id), map[string]bool{
		"isActive":  false,
		"triggered": true,
	}, &alert)
	return alert, err
}

// FeedURL is the WebSocket address of the price feed on the same host.
func (c *Client) FeedURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, out), "failed to decode response")
}
