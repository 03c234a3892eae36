// Package dispatch sends webhooks outbound: replaying persisted captures
// against a target URL, and issuing template-driven requests with synthetic
// provider signatures.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout bounds outbound requests when the caller sets none.
const defaultTimeout = 30 * time.Second

// ErrCaptureNotFound reports that no capture matched the requested id.
var ErrCaptureNotFound = errors.New("dispatch: capture not found")

// Result is the outcome of one outbound dispatch.
type Result struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Duration   time.Duration     `json:"duration"`
}

// ExecutionError wraps a transport failure with the time spent before it.
type ExecutionError struct {
	Duration time.Duration
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("dispatch: request failed after %v: %v", e.Duration, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// send performs the request and shapes the response. No retries.
func send(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte) (*Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("dispatch: build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &ExecutionError{Duration: elapsed, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	elapsed = time.Since(start)
	if err != nil {
		return nil, &ExecutionError{Duration: elapsed, Err: err}
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			respHeaders[key] = values[0]
		}
	}
	return &Result{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    respHeaders,
		Body:       string(respBody),
		Duration:   elapsed,
	}, nil
}

// getHeader looks a header up case-insensitively in a plain map.
func getHeader(h map[string]string, name string) string {
	for key, value := range h {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// setHeader overwrites any existing spelling of name before setting it.
func setHeader(h map[string]string, name, value string) {
	for key := range h {
		if strings.EqualFold(key, name) {
			delete(h, key)
		}
	}
	h[name] = value
}
