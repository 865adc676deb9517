// Package rest is the HTTP client for the remote task API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"taskmaster/backend"
	"taskmaster/internal/ratelimit"
	"taskmaster/internal/utils"
)

const (
	// DefaultFetchLimit matches the server's page size for GET /tasks.
	DefaultFetchLimit = 100
	// DefaultMaxFetchLimit bounds how far FetchAll grows the limit.
	DefaultMaxFetchLimit = 1 << 20
)

// ErrIncompleteSnapshot means the server kept returning full pages up to
// the maximum fetch limit, so the listing cannot be trusted as the whole collection.
var ErrIncompleteSnapshot = errors.New("remote snapshot may be incomplete")

// Config holds the remote connection settings
type Config struct {
	BaseURL    string // e.g. http://localhost:8001/api
	APIToken   string
	Timeout    time.Duration
	MaxRetries int
	FetchLimit int
	// MaxFetchLimit caps FetchAll's growing limit; DefaultMaxFetchLimit if zero.
	MaxFetchLimit int
}

// Backend implements backend.RemoteStore over the task REST API
type Backend struct {
	config  Config
	client  *ratelimit.Client
	baseURL string
	stats   *ratelimit.Stats
}

// New creates a client for the API at cfg.BaseURL.
func New(cfg Config) (*Backend, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid remote base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if cfg.MaxFetchLimit <= 0 {
		cfg.MaxFetchLimit = DefaultMaxFetchLimit
	}

	stats := ratelimit.NewStats()
	return &Backend{
		config:  cfg,
		baseURL: base,
		stats:   stats,
		client: ratelimit.NewClient(ratelimit.Config{
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
			Jitter:     true,
			Stats:      stats,
			Name:       "remote",
		}),
	}, nil
}

// Close releases idle connections
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// Stats exposes throttling statistics.
func (b *Backend) Stats() *ratelimit.Stats {
	return b.stats
}

// apiError is the error body the server sends: {"detail": "..."}
type apiError struct {
	Detail json.RawMessage `json:"detail"`
}

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Code)
}

// doRequest performs an HTTP request against the API
func (b *Backend) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}
	if b.config.APIToken != "" {
		header.Set("Authorization", "Bearer "+b.config.APIToken)
	}

	return b.client.Do(ctx, method, b.baseURL+path, payload, header)
}

// expect checks resp has one of the wanted statuses and decodes into out when non-nil.
func expect(resp *http.Response, method, path string, out interface{}, codes ...int) error {
	defer func() { _ = resp.Body.Close() }()

	for _, code := range codes {
		if resp.StatusCode == code {
			if out == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("%s %s: decode response: %w", method, path, err)
			}
			return nil
		}
	}

	se := &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ae apiError
	if json.Unmarshal(data, &ae) == nil && len(ae.Detail) > 0 {
		var s string
		if json.Unmarshal(ae.Detail, &s) == nil {
			se.Detail = s
		} else {
			se.Detail = string(ae.Detail)
		}
	}
	return se
}

// Health checks GET /health.
func (b *Backend) Health(ctx context.Context) error {
	resp, err := b.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return expect(resp, http.MethodGet, "/health", nil, http.StatusOK)
}

// FetchAll returns the whole remote collection, newest first as the server
// orders it. GET /tasks only takes a limit, so a full page is asked for again
// with twice the limit until fewer tasks than requested come back.
func (b *Backend) FetchAll(ctx context.Context) ([]backend.RemoteTask, error) {
	for limit := b.config.FetchLimit; ; limit *= 2 {
		if limit > b.config.MaxFetchLimit {
			return nil, fmt.Errorf("%w: more than %d tasks", ErrIncompleteSnapshot, b.config.MaxFetchLimit)
		}
		tasks, err := b.list(ctx, limit)
		if err != nil {
			return nil, err
		}
		if len(tasks) < limit {
			return tasks, nil
		}
		utils.Debugf("Remote returned a full page of %d tasks, asking for more", limit)
	}
}

func (b *Backend) list(ctx context.Context, limit int) ([]backend.RemoteTask, error) {
	path := "/tasks?limit=" + strconv.Itoa(limit)
	resp, err := b.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	tasks := []backend.RemoteTask{}
	if err := expect(resp, http.MethodGet, path, &tasks, http.StatusOK); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []backend.RemoteTask{}
	}
	return tasks, nil
}

// Create posts a new task and returns the server's record, carrying its id.
func (b *Backend) Create(ctx context.Context, in backend.RemoteTaskInput) (*backend.RemoteTask, error) {
	resp, err := b.doRequest(ctx, http.MethodPost, "/tasks", in)
	if err != nil {
		return nil, err
	}
	var created backend.RemoteTask
	if err := expect(resp, http.MethodPost, "/tasks", &created, http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update sends a partial update.
func (b *Backend) Update(ctx context.Context, id string, fields backend.TaskUpdate) error {
	if fields.IsEmpty() {
		return nil
	}
	path := "/tasks/" + url.PathEscape(id)
	resp, err := b.doRequest(ctx, http.MethodPut, path, fields)
	if err != nil {
		return err
	}
	return expect(resp, http.MethodPut, path, nil, http.StatusOK)
}

// Delete removes a task. A task the server no longer knows counts as deleted.
func (b *Backend) Delete(ctx context.Context, id string) error {
	path := "/tasks/" + url.PathEscape(id)
	resp, err := b.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return expect(resp, http.MethodDelete, path, nil, http.StatusOK, http.StatusNoContent, http.StatusNotFound)
}
