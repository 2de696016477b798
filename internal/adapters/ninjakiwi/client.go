// Package ninjakiwi is the HTTP fetch layer for the Ninja Kiwi open data API.
//
// Every request goes through a shared Gate, carries a fixed User-Agent and is
// decoded from the {success, body, error} envelope. Rate-limit responses
// (403 with Retry-After) are retried with backoff; nothing else is retried.
package ninjakiwi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/bloons/pkg/logger"
	"github.com/okian/bloons/pkg/metrics"
)

// Defaults.
const (
	DefaultBaseURL        = "https://data.ninjakiwi.com"
	DefaultUserAgent      = "bloons-go (+https://github.com/okian/bloons)"
	DefaultMaxAttempts    = 3
	DefaultMaxJitter      = 3 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	// MaxRetryAfter caps the server-requested backoff.
	MaxRetryAfter = 10 * time.Minute

	statusUnderMaintenance = 525
	maxBodyBytes           = 32 << 20
)

// HTTPDoer is the part of *http.Client the fetch layer needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues GET requests against a single origin.
type Client struct {
	baseURL     string
	userAgent   string
	doer        HTTPDoer
	gate        *Gate
	maxAttempts int
	maxJitter   time.Duration
	jitter      func(limit time.Duration) time.Duration
	logger      logger.Logger
}

// New creates a Client. Without WithGate the client gets a private Gate of
// DefaultConcurrency slots.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		userAgent:   DefaultUserAgent,
		doer:        &http.Client{Timeout: DefaultRequestTimeout},
		maxAttempts: DefaultMaxAttempts,
		maxJitter:   DefaultMaxJitter,
		jitter:      randomJitter,
		logger:      logger.Get().Named("ninjakiwi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gate == nil {
		c.gate = NewGate(DefaultConcurrency)
	}
	return c
}

// Gate returns the admission gate used by the client.
func (c *Client) Gate() *Gate { return c.gate }

// envelope is the fixed response wrapper of the API.
type envelope struct {
	Success bool            `json:"success"`
	Body    json.RawMessage `json:"body"`
	Error   string          `json:"error"`
}

// outcome is the result of one attempt.
type outcome struct {
	body        json.RawMessage
	rateLimited bool
	retryAfter  time.Duration
}

// Get fetches path with the given query and returns the envelope body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	endpoint := endpointLabel(path)
	target, err := c.resolve(path, query)
	if err != nil {
		return nil, &Error{Kind: ErrBadRequest, Path: path, Err: err}
	}

	for attempt := 1; ; attempt++ {
		out, err := c.attempt(ctx, path, target)
		if err != nil {
			metrics.RecordFetchError(endpoint, kindLabel(err))
			return nil, err
		}
		if !out.rateLimited {
			return out.body, nil
		}
		if attempt >= c.maxAttempts {
			metrics.RecordFetchError(endpoint, "request_failed")
			c.logger.Warn(ctx, "rate limited, giving up",
				logger.String("path", path),
				logger.Int("attempts", attempt),
			)
			return nil, &Error{Kind: ErrRequestFailed, Path: path, Status: http.StatusForbidden}
		}

		wait := out.retryAfter
		metrics.RecordRateLimitRetry(endpoint)
		c.logger.Info(ctx, "rate limited, backing off",
			logger.String("path", path),
			logger.Int("attempt", attempt),
			logger.Duration("wait", wait),
			logger.String("policy", c.gate.Policy().String()),
		)
		if err := c.gate.Backoff(ctx, wait); err != nil {
			return nil, &Error{Kind: ErrRequestFailed, Path: path, Err: err}
		}
	}
}

// attempt performs one admitted round trip and classifies the response.
func (c *Client) attempt(ctx context.Context, path, target string) (outcome, error) {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return outcome{}, &Error{Kind: ErrRequestFailed, Path: path, Err: err}
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return outcome{}, &Error{Kind: ErrBadRequest, Path: path, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		return outcome{}, &Error{Kind: ErrRequestFailed, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	took := time.Since(start)
	endpoint := endpointLabel(path)
	metrics.RecordHTTPRequest(endpoint, statusClass(resp.StatusCode))
	metrics.RecordHTTPRequestDuration(endpoint, took)
	c.logger.Debug(ctx, "upstream response",
		logger.String("request_id", requestID),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("took", took),
	)

	switch {
	case resp.StatusCode == statusUnderMaintenance:
		return outcome{}, &Error{Kind: ErrUnderMaintenance, Path: path, Status: resp.StatusCode}
	case resp.StatusCode >= http.StatusInternalServerError:
		return outcome{}, &Error{Kind: ErrServer, Path: path, Status: resp.StatusCode}
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusForbidden:
		return outcome{}, &Error{Kind: ErrBadRequest, Path: path, Status: resp.StatusCode}
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return outcome{}, &Error{
			Kind:   ErrMalformedResponse,
			Path:   path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("content type %q", resp.Header.Get("Content-Type")),
		}
	}

	if resp.StatusCode == http.StatusForbidden {
		if h := resp.Header.Get("Retry-After"); h != "" {
			// The deadline is set while the slot is still held, so no queued
			// request slips through before the pause is visible.
			wait := parseRetryAfter(h, time.Now()) + c.jitter(c.maxJitter)
			c.gate.Pause(wait)
			return outcome{rateLimited: true, retryAfter: wait}, nil
		}
	}

	if readErr != nil {
		return outcome{}, &Error{Kind: ErrRequestFailed, Path: path, Status: resp.StatusCode, Err: readErr}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return outcome{}, &Error{Kind: ErrMalformedResponse, Path: path, Status: resp.StatusCode, Err: err}
	}
	if !env.Success {
		return outcome{}, &Error{Kind: ErrApplication, Path: path, Status: resp.StatusCode, Message: env.Error}
	}
	return outcome{body: env.Body}, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json"
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Unparseable, NaN or
// past values yield zero; anything beyond MaxRetryAfter is capped.
func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if secs, err := strconv.ParseFloat(h, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		switch {
		case math.IsNaN(secs) || secs <= 0:
			return 0
		case secs >= MaxRetryAfter.Seconds():
			return MaxRetryAfter
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := t.Sub(now); d > 0 {
			return min(d, MaxRetryAfter)
		}
	}
	return 0
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

// endpointLabel keeps the first two path segments, e.g. /btd6/races, so that
// resource IDs do not explode metric cardinality.
func endpointLabel(path string) string {
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
