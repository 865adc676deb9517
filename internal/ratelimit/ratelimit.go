// Package ratelimit paces outgoing HTTP requests and retries the ones the
// server throttles (429 and 503) with exponential backoff.
package ratelimit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied by NewClient to zero Config fields.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 8 * time.Second
	DefaultTimeout    = 30 * time.Second
	DefaultRate       = 10 // requests per second
	DefaultBurst      = 5
)

// Config holds configuration for the client.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration // per attempt

	// Rate is the steady request rate per second; negative disables pacing.
	Rate  float64
	Burst int

	// Jitter spreads computed delays by ±20%.
	Jitter bool

	Stats *Stats
	Name  string // used in error messages
}

// Client is an HTTP client that paces requests and retries throttled ones.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cfg     Config
}

// NewClient creates a client, filling unset fields with the defaults.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	limit := rate.Limit(cfg.Rate)
	switch {
	case cfg.Rate < 0:
		limit = rate.Inf
	case cfg.Rate == 0:
		limit = DefaultRate
	}

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cfg:     cfg,
	}
}

func throttled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// Do sends the request, waiting for the pacer before every attempt. Throttled
// responses are retried after Retry-After, or an exponential backoff when the
// server gives none. body is resent on every attempt.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header = header.Clone()
		if req.Header == nil {
			req.Header = http.Header{}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if !throttled(resp.StatusCode) {
			return resp, nil
		}
		_ = resp.Body.Close()
		c.cfg.Stats.record()

		if attempt == c.cfg.MaxRetries {
			return nil, &ThrottledError{Name: c.cfg.Name, Retries: c.cfg.MaxRetries}
		}

		retryAfter, ok := ParseRetryAfter(resp.Header.Get("Retry-After"))
		t := time.NewTimer(c.backoff(attempt, retryAfter, ok))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// backoff returns the wait before retry number attempt+1, never above MaxDelay.
func (c *Client) backoff(attempt int, retryAfter time.Duration, hasRetryAfter bool) time.Duration {
	if hasRetryAfter {
		return min(retryAfter, c.cfg.MaxDelay)
	}
	delay := c.cfg.MaxDelay
	if attempt < 32 {
		delay = min(c.cfg.BaseDelay<<attempt, c.cfg.MaxDelay)
	}
	if c.cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
	}
	return delay
}

// ThrottledError is returned once every retry was throttled.
type ThrottledError struct {
	Name    string
	Retries int
}

func (e *ThrottledError) Error() string {
	name := e.Name
	if name == "" {
		name = "server"
	}
	return fmt.Sprintf("%s still throttling after %d retries", name, e.Retries)
}

// ParseRetryAfter reads a Retry-After value in seconds or HTTP-date form.
// A date in the past gives zero.
func ParseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		return max(time.Until(t), 0), true
	}
	return 0, false
}

// Stats counts throttled responses. A nil *Stats records nothing.
type Stats struct {
	mu        sync.Mutex
	throttled int64
	last      time.Time
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) record() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttled++
	s.last = time.Now()
}

// Throttled returns how many responses asked the client to slow down.
func (s *Stats) Throttled() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.throttled
}

// LastThrottled returns when that last happened.
func (s *Stats) LastThrottled() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
