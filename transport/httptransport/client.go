// Package httptransport implements the bhaktisync RemoteClient over the
// tracker server's HTTP JSON contract.
//
// Every request is independently timeboxed (5s by default): a server that
// answers slower than the bound is treated as unreachable, the same as a
// refused connection, a timeout, a non-2xx status, or an undecodable body.
// Callers never learn the cause, only that the server could not be reached.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	bhaktisync "github.com/bhaktidev/bhakti-sync"
	syncErrors "github.com/bhaktidev/bhakti-sync/errors"
	"github.com/bhaktidev/bhakti-sync/logging"
)

// DefaultTimeout bounds every request. Short enough that a dead network is
// detected before the user notices, long enough for a slow mobile link.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps response bodies; the contract's payloads are tiny.
const maxResponseBytes = 1 << 20

// Client is an HTTP RemoteClient for the tracker server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

// Compile-time check to ensure Client satisfies the RemoteClient interface
var _ bhaktisync.RemoteClient = (*Client)(nil)

// Option configures a Client using the functional options pattern
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) {
		c.http = cl
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithLogger sets a custom logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new RemoteClient for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logging.WithComponent("remote-client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the base URL for the client
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchCounters retrieves the server's counter set for a date.
func (c *Client) FetchCounters(ctx context.Context, date string) ([]bhaktisync.RemoteCounter, error) {
	var resp mantrasResponse
	if err := c.getJSON(ctx, "/api/mantras/"+date, &resp); err != nil {
		return nil, err
	}

	out := make([]bhaktisync.RemoteCounter, 0, len(resp.Mantras))
	for _, m := range resp.Mantras {
		out = append(out, bhaktisync.RemoteCounter{
			Name:   m.Name,
			Count:  m.Count,
			Target: m.Target,
		})
	}
	return out, nil
}

// FetchChecklist retrieves the server's activity set for a date.
func (c *Client) FetchChecklist(ctx context.Context, date string) ([]bhaktisync.RemoteChecklistItem, error) {
	var resp activitiesResponse
	if err := c.getJSON(ctx, "/api/activities/"+date, &resp); err != nil {
		return nil, err
	}

	out := make([]bhaktisync.RemoteChecklistItem, 0, len(resp.Activities))
	for _, a := range resp.Activities {
		out = append(out, bhaktisync.RemoteChecklistItem{
			Name:         a.Name,
			DisplayLabel: a.DisplayName,
			Category:     a.Category,
			Completed:    a.Completed,
		})
	}
	return out, nil
}

// PushCounterCount writes a client-computed count for one counter.
func (c *Client) PushCounterCount(ctx context.Context, name, date string, count int) error {
	return c.send(ctx, http.MethodPut, "/api/mantras", setMantraRequest{
		Name:  name,
		Date:  date,
		Count: count,
	})
}

// IncrementCounter asks the server to increment a counter by one and returns
// the server's resulting count. This is the server-computed variant of
// PushCounterCount used by thin clients that hold no local count.
func (c *Client) IncrementCounter(ctx context.Context, name, date string) (bhaktisync.RemoteCounter, error) {
	body, err := json.Marshal(incrementMantraRequest{Name: name, Date: date})
	if err != nil {
		return bhaktisync.RemoteCounter{}, syncErrors.NewValidationError(syncErrors.OpPush, err)
	}

	data, err := c.do(ctx, http.MethodPost, "/api/mantras/increment", body)
	if err != nil {
		return bhaktisync.RemoteCounter{}, err
	}

	var m mantraJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return bhaktisync.RemoteCounter{}, syncErrors.NewDecodeError(syncErrors.OpPush, err)
	}
	return bhaktisync.RemoteCounter{Name: m.Name, Count: m.Count, Target: m.Target}, nil
}

// PushChecklistState writes the completed flag for one activity.
func (c *Client) PushChecklistState(ctx context.Context, name, date string, completed bool) error {
	return c.send(ctx, http.MethodPut, "/api/activities", setActivityRequest{
		Name:      name,
		Date:      date,
		Completed: completed,
	})
}

// Close releases transport resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.LogError(ctx, err, "malformed server response", slog.String("path", path))
		return syncErrors.NewDecodeError(syncErrors.OpFetch, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return syncErrors.NewValidationError(syncErrors.OpPush, err)
	}
	_, err = c.do(ctx, method, path, body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	op := syncErrors.OpFetch
	if method != http.MethodGet {
		op = syncErrors.OpPush
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, syncErrors.NewValidationError(op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, syncErrors.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, syncErrors.NewNetworkError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("server returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return nil, syncErrors.NewNetworkError(op,
			fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(data)))
	}

	return data, nil
}
