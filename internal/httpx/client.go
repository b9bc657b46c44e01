// Package httpx is the shared outbound HTTP transport for provider calls.
// It bounds latency with a hard timeout and paces requests per client so a
// slow carrier cannot starve checkout traffic. It does not retry: whether a
// failure is retryable is the caller's decision (see errs.Retryable).
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const DefaultTimeout = 30 * time.Second

type Client struct {
	hc      *http.Client
	limiter *rate.Limiter
}

// New builds a client with the given timeout and a sustained requests-per-
// second cap. rps <= 0 disables pacing.
func New(timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return &Client{hc: &http.Client{Timeout: timeout}, limiter: lim}
}

// Do waits for a rate-limiter slot, then executes the request. The body is
// fully read and the response closed so connections are reused.
func (c *Client) Do(req *http.Request) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return 0, nil, err
		}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// PostJSON marshals in, POSTs it, and returns status and raw body.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, in any) (int, []byte, error) {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(req)
}

// Get fetches url and returns status and body.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(req)
}

// Transient reports whether err looks like a network-level failure (timeout,
// refused connection, DNS) rather than a provider verdict.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
