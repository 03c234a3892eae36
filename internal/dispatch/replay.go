package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/better-webhook/better-webhook/internal/capture"
)

// strippedHeaders are never forwarded on replay: they describe the original
// hop, not the webhook, and the transport regenerates them.
var strippedHeaders = map[string]struct{}{
	"host":            {},
	"content-length":  {},
	"connection":      {},
	"accept-encoding": {},
}

// ReplayOptions shape one replay. Headers overlay the capture's headers,
// overwriting case-insensitively.
type ReplayOptions struct {
	TargetURL string
	Method    string
	Headers   map[string]string
	Timeout   time.Duration
}

// Replayer reconstructs HTTP requests from captures and sends them.
type Replayer struct {
	store  *capture.Store
	client *http.Client
}

// NewReplayer builds a replayer over the store. A nil client gets a default
// with the package timeout.
func NewReplayer(store *capture.Store, client *http.Client) *Replayer {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Replayer{store: store, client: client}
}

// Replay loads the capture and transmits it to opts.TargetURL.
func (r *Replayer) Replay(ctx context.Context, captureID string, opts ReplayOptions) (*Result, error) {
	if opts.TargetURL == "" {
		return nil, fmt.Errorf("dispatch: target URL is required")
	}
	f, err := r.store.Get(captureID)
	if err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, captureID)
		}
		return nil, fmt.Errorf("dispatch: load capture: %w", err)
	}
	rec := f.Capture

	method := opts.Method
	if method == "" {
		method = rec.Method
	}

	headers := make(map[string]string, len(rec.Headers))
	for key, value := range rec.Headers {
		if _, stripped := strippedHeaders[strings.ToLower(key)]; stripped {
			continue
		}
		headers[key] = value
	}
	for key, value := range opts.Headers {
		setHeader(headers, key, value)
	}

	body, err := replayBody(rec)
	if err != nil {
		return nil, err
	}

	client := r.client
	if opts.Timeout > 0 {
		clone := *client
		clone.Timeout = opts.Timeout
		client = &clone
	}
	return send(ctx, client, method, opts.TargetURL, headers, body)
}

// replayBody prefers the verbatim raw body; parsed-only captures are
// re-encoded as JSON.
func replayBody(rec capture.Record) ([]byte, error) {
	if rec.RawBody != "" {
		return []byte(rec.RawBody), nil
	}
	if rec.Body == nil {
		return nil, nil
	}
	data, err := json.Marshal(rec.Body)
	if err != nil {
		return nil, fmt.Errorf("dispatch: encode capture body: %w", err)
	}
	return data, nil
}
