// Package httpclient is the JSON transport shared by the search providers.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxErrorBody = 4096

// StatusError is returned for non-2xx responses after retries are exhausted.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Body)
}

// Retryable reports whether a repeat of the request could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

type Option func(*Client)

// WithHTTPClient swaps the underlying client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func New(timeout time.Duration, retries int, backoff time.Duration, opts ...Option) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if backoff == 0 {
		backoff = 300 * time.Millisecond
	}
	c := &Client{client: &http.Client{Timeout: timeout}, retries: retries, backoff: backoff}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type retryGateKey struct{}

// WithRetryGate returns a context whose DoJSON calls run gate before every
// repeat attempt. The first attempt is admitted by whoever issued the call.
func WithRetryGate(ctx context.Context, gate func(context.Context) error) context.Context {
	return context.WithValue(ctx, retryGateKey{}, gate)
}

func retryGate(ctx context.Context) func(context.Context) error {
	gate, _ := ctx.Value(retryGateKey{}).(func(context.Context) error)
	return gate
}

// DoJSON sends body as JSON (when non-nil) and decodes a 2xx response into
// out. Transport errors, 429 and 5xx responses are retried with exponential
// backoff; other statuses fail on the first attempt. Each retry passes the
// context's retry gate first.
func (c *Client) DoJSON(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		if gate := retryGate(ctx); attempt > 0 && gate != nil {
			if err := gate(ctx); err != nil {
				return err
			}
		}
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if payload != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		retry, err := c.do(req, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}

		if attempt < tries-1 {
			timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (c *Client) do(req *http.Request, out any) (bool, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return false, nil
	}
	// best-effort body for the error message
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serr := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	return serr.Retryable(), serr
}
