// Package client is a small HTTP client for the conductor daemon API, used
// by the CLI subcommands and embeddable by other programs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a running conductor daemon.
type Client struct {
	baseURL string
	client  *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the local-daemon configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable reports whether the daemon answers its health endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	var out map[string]string
	return c.do(ctx, http.MethodGet, "/health", nil, &out) == nil
}

// Status returns the daemon's full status snapshot.
func (c *Client) Status(ctx context.Context) (Report, error) {
	var out Report
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// URLs returns the base-service addresses.
func (c *Client) URLs(ctx context.Context) (URLs, error) {
	var out URLs
	err := c.do(ctx, http.MethodGet, "/api/urls", nil, &out)
	return out, err
}

// Sessions lists active sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var out []Session
	err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out)
	return out, err
}

// CreateSession creates or mode-switches the session for a document.
func (c *Client) CreateSession(ctx context.Context, doc, mode string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/sessions", SessionRequest{Doc: doc, Mode: mode}, &out)
	return out, err
}

// Session returns one session by document id.
func (c *Client) Session(ctx context.Context, doc string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(doc), nil, &out)
	return out, err
}

// DestroySession tears down the document's session.
func (c *Client) DestroySession(ctx context.Context, doc string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(doc), nil, nil)
}

// Monitors lists documents with a registered monitor.
func (c *Client) Monitors(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/api/monitors", nil, &out)
	return out, err
}

// Monitor returns the status of one document's monitor.
func (c *Client) Monitor(ctx context.Context, doc string) (Monitor, error) {
	var out Monitor
	err := c.do(ctx, http.MethodGet, "/api/monitors/"+url.PathEscape(doc), nil, &out)
	return out, err
}

// StartMonitor starts a standalone monitor for a document.
func (c *Client) StartMonitor(ctx context.Context, doc string) error {
	return c.do(ctx, http.MethodPost, "/api/monitors/"+url.PathEscape(doc), nil, nil)
}

// StopMonitor stops a document's monitor.
func (c *Client) StopMonitor(ctx context.Context, doc string) error {
	return c.do(ctx, http.MethodDelete, "/api/monitors/"+url.PathEscape(doc), nil, nil)
}

// Logs returns up to lines recent output lines of a supervised process.
func (c *Client) Logs(ctx context.Context, name string, lines int) (Logs, error) {
	p := "/api/logs/" + url.PathEscape(name)
	if lines > 0 {
		p += "?lines=" + strconv.Itoa(lines)
	}
	var out Logs
	err := c.do(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

// Files lists documents in the storage directory.
func (c *Client) Files(ctx context.Context) ([]File, error) {
	var out []File
	err := c.do(ctx, http.MethodGet, "/api/files", nil, &out)
	return out, err
}

// CreateFile creates a new markdown document.
func (c *Client) CreateFile(ctx context.Context, name string) (File, error) {
	var out File
	err := c.do(ctx, http.MethodPost, "/api/files", File{Name: name}, &out)
	return out, err
}

// DeleteFile removes a document and destroys its session.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(name), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var er ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, er.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
