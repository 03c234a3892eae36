// Package webhook implements a verified, schema-validated, replay-safe
// webhook receiver as a transport-agnostic pipeline. A Webhook is built
// fluently from a Provider plus event registrations, then fed raw requests
// through Process; host adapters translate their framework's request and
// response types to ProcessOptions and ProcessResult.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/better-webhook/better-webhook/sdk/replay"
)

// Handler processes one validated payload. Handlers registered for an event
// run sequentially in registration order; a non-nil error stops the chain
// and fails the request. ctx is the host request context and may be
// cancelled mid-handler; replay finalization still runs in that case.
type Handler func(ctx context.Context, payload any, hctx *HandlerContext) error

// HandlerContext carries request-scoped metadata. The same instance is
// shared by every handler of a single request.
type HandlerContext struct {
	EventType  string
	Provider   string
	DeliveryID string
	Headers    Headers
	RawBody    string
	ReceivedAt time.Time
}

// ErrorContext accompanies OnError callbacks.
type ErrorContext struct {
	EventType  string
	DeliveryID string
	Payload    any
}

// DuplicateAction decides the response for a duplicate delivery.
type DuplicateAction string

const (
	// DuplicateConflict answers 409 for duplicates.
	DuplicateConflict DuplicateAction = "conflict"
	// DuplicateIgnore acknowledges duplicates with 200 without running
	// handlers again.
	DuplicateIgnore DuplicateAction = "ignore"
)

// ReplayPolicy configures replay protection. Zero durations select the
// defaults noted per field; negative durations are invalid.
type ReplayPolicy struct {
	// Store is the idempotency backend. Required.
	Store replay.Store
	// InFlightTTL bounds how long a reservation is held while the request
	// is being processed. Default 1m.
	InFlightTTL time.Duration
	// TTL is the committed dedup window. Default 24h.
	TTL time.Duration
	// Tolerance rejects deliveries whose replay timestamp is further than
	// this from now. Zero disables the freshness check.
	Tolerance time.Duration
	// OnDuplicate selects the duplicate response. Default DuplicateConflict.
	OnDuplicate DuplicateAction
	// Key derives the canonical idempotency key from the replay context.
	// Returning "" skips replay protection for that request. Nil uses
	// DefaultReplayKey.
	Key func(ReplayContext) string
}

// DefaultReplayKey prefers the provider's replay key and falls back to the
// delivery ID.
func DefaultReplayKey(rctx ReplayContext) string {
	if rctx.ReplayKey != "" {
		return rctx.ReplayKey
	}
	return rctx.DeliveryID
}

type handlerEntry struct {
	schema   Schema
	handlers []Handler
}

// Webhook is an immutable receiver definition. Every mutator returns a new
// instance; a configured Webhook is safe to share across goroutines.
type Webhook struct {
	provider             Provider
	events               map[string]handlerEntry
	eventOrder           []string
	observers            []Observer
	onError              func(error, ErrorContext)
	onVerificationFailed func(reason string, h Headers)
	maxBodyBytes         int64
	replayPolicy         *ReplayPolicy
}

// New starts a webhook definition for the given provider.
func New(provider Provider) *Webhook {
	if provider == nil {
		panic("webhook: provider must not be nil")
	}
	return &Webhook{provider: provider}
}

// clone copies the definition with fresh slices and map so mutations never
// leak into previously returned instances.
func (w *Webhook) clone() *Webhook {
	next := &Webhook{
		provider:             w.provider,
		events:               make(map[string]handlerEntry, len(w.events)),
		eventOrder:           append([]string(nil), w.eventOrder...),
		observers:            append([]Observer(nil), w.observers...),
		onError:              w.onError,
		onVerificationFailed: w.onVerificationFailed,
		maxBodyBytes:         w.maxBodyBytes,
		replayPolicy:         w.replayPolicy,
	}
	for name, entry := range w.events {
		next.events[name] = handlerEntry{
			schema:   entry.schema,
			handlers: append([]Handler(nil), entry.handlers...),
		}
	}
	return next
}

// Event registers handlers for an event name. A nil schema accepts any JSON
// payload. Registering the same name again appends handlers; a non-nil
// schema replaces the previous one.
func (w *Webhook) Event(name string, schema Schema, handlers ...Handler) *Webhook {
	next := w.clone()
	entry, exists := next.events[name]
	if !exists {
		next.eventOrder = append(next.eventOrder, name)
	}
	if schema != nil {
		entry.schema = schema
	}
	entry.handlers = append(entry.handlers, handlers...)
	next.events[name] = entry
	return next
}

// OnError installs a best-effort callback invoked for schema validation
// failures and handler errors. Panics inside the callback are swallowed.
func (w *Webhook) OnError(fn func(error, ErrorContext)) *Webhook {
	next := w.clone()
	next.onError = fn
	return next
}

// OnVerificationFailed installs a best-effort callback invoked for 401
// outcomes with the failure reason and the normalized headers.
func (w *Webhook) OnVerificationFailed(fn func(reason string, h Headers)) *Webhook {
	next := w.clone()
	next.onVerificationFailed = fn
	return next
}

// Observe appends observers, notified in registration order.
func (w *Webhook) Observe(observers ...Observer) *Webhook {
	next := w.clone()
	next.observers = append(next.observers, observers...)
	return next
}

// MaxBodyBytes caps the accepted body size. Zero means unlimited.
func (w *Webhook) MaxBodyBytes(n int64) *Webhook {
	next := w.clone()
	next.maxBodyBytes = n
	return next
}

// WithReplayProtection enables at-most-once handler execution per replay
// key. Defaults are applied to zero policy fields; a nil store or negative
// duration panics, as this is a construction-time configuration error.
func (w *Webhook) WithReplayProtection(policy ReplayPolicy) *Webhook {
	if policy.Store == nil {
		panic("webhook: replay policy requires a store")
	}
	if policy.InFlightTTL < 0 || policy.TTL < 0 || policy.Tolerance < 0 {
		panic(fmt.Sprintf("webhook: replay policy durations must be positive: %+v", policy))
	}
	if policy.InFlightTTL == 0 {
		policy.InFlightTTL = time.Minute
	}
	if policy.TTL == 0 {
		policy.TTL = 24 * time.Hour
	}
	if policy.OnDuplicate == "" {
		policy.OnDuplicate = DuplicateConflict
	}
	if policy.Key == nil {
		policy.Key = DefaultReplayKey
	}
	next := w.clone()
	next.replayPolicy = &policy
	return next
}

// Provider returns the provider this webhook was built for.
func (w *Webhook) Provider() Provider { return w.provider }

// EventNames returns the registered event names in registration order.
func (w *Webhook) EventNames() []string {
	return append([]string(nil), w.eventOrder...)
}
