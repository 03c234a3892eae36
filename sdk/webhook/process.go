package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/better-webhook/better-webhook/sdk/replay"
)

// ProcessOptions is the transport-agnostic request input. Adapters must pass
// the body bytes exactly as delivered on the wire; signature verification
// depends on it.
type ProcessOptions struct {
	// Headers are the raw request headers. The pipeline normalizes them.
	Headers http.Header
	// RawBody is the verbatim request body.
	RawBody []byte
	// Secret overrides provider and environment secret resolution.
	Secret string
	// MaxBodyBytes overrides the webhook-level cap when > 0.
	MaxBodyBytes int64
}

// ResultBody is the JSON response body for non-204 outcomes.
type ResultBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ProcessResult is the pipeline outcome. Body is nil for 204 responses.
type ProcessResult struct {
	Status    int
	EventType string
	Body      *ResultBody
}

// User-visible error strings, stable across releases.
const (
	msgPayloadTooLarge    = "Payload too large"
	msgInvalidJSON        = "Invalid JSON payload"
	msgMissingSecret      = "Missing webhook secret"
	msgVerificationFailed = "Signature verification failed"
	msgDuplicateDelivery  = "Duplicate webhook delivery"
	msgStaleTimestamp     = "Webhook timestamp outside tolerance"
	msgSchemaInvalid      = "Schema validation failed"
	msgHandlerFailed      = "Handler execution failed"
	msgReplayStoreFailed  = "Replay protection failed"
)

// run tracks the mutable state of one Process invocation.
type run struct {
	w          *Webhook
	ctx        context.Context
	headers    Headers
	rawBody    []byte
	startTime  time.Time
	receivedAt time.Time
	eventType  string
	deliveryID string
	// heldKey is non-empty while a replay reservation must be finalized.
	heldKey string
}

func (r *run) event(kind Kind) Event {
	return Event{
		Kind:         kind,
		Provider:     r.w.provider.Name(),
		EventType:    r.eventType,
		DeliveryID:   r.deliveryID,
		RawBodyBytes: len(r.rawBody),
		StartTime:    r.startTime,
		ReceivedAt:   r.receivedAt,
	}
}

func (r *run) emit(e Event) {
	emit(r.w.observers, e)
}

// complete emits the terminal observation and returns the result. Every
// Process path funnels through here exactly once.
func (r *run) complete(res ProcessResult) ProcessResult {
	e := r.event(KindCompleted)
	e.Status = res.Status
	e.Success = res.Status < 400
	e.Duration = time.Since(r.startTime)
	r.emit(e)
	return res
}

func failure(status int, message string) ProcessResult {
	return ProcessResult{Status: status, Body: &ResultBody{OK: false, Error: message}}
}

// callOnError invokes the user error callback, swallowing panics.
func (r *run) callOnError(err error, payload any) {
	if r.w.onError == nil {
		return
	}
	func() {
		defer func() { _ = recover() }()
		r.w.onError(err, ErrorContext{
			EventType:  r.eventType,
			DeliveryID: r.deliveryID,
			Payload:    payload,
		})
	}()
}

// callOnVerificationFailed invokes the user callback, swallowing panics.
func (r *run) callOnVerificationFailed(reason string) {
	if r.w.onVerificationFailed == nil {
		return
	}
	func() {
		defer func() { _ = recover() }()
		r.w.onVerificationFailed(reason, r.headers)
	}()
}

// Process runs the receiver pipeline for one request. It never returns an
// error: every failure maps to a terminal status in the result, and exactly
// one completed observation is emitted per call.
func (w *Webhook) Process(ctx context.Context, opts ProcessOptions) ProcessResult {
	now := time.Now()
	r := &run{
		w:          w,
		ctx:        ctx,
		headers:    NormalizeHeaders(opts.Headers),
		rawBody:    opts.RawBody,
		startTime:  now,
		receivedAt: now,
	}
	r.emit(r.event(KindRequestReceived))

	// Size guard runs before anything touches the body.
	maxBytes := w.maxBodyBytes
	if opts.MaxBodyBytes > 0 {
		maxBytes = opts.MaxBodyBytes
	}
	if maxBytes > 0 && int64(len(r.rawBody)) > maxBytes {
		r.emit(r.event(KindBodyTooLarge))
		return r.complete(failure(http.StatusRequestEntityTooLarge, msgPayloadTooLarge))
	}

	var parsed any
	if err := json.Unmarshal(r.rawBody, &parsed); err != nil {
		e := r.event(KindJSONParseFailed)
		e.Err = err
		r.emit(e)
		return r.complete(failure(http.StatusBadRequest, msgInvalidJSON))
	}

	r.eventType = w.provider.EventType(r.headers, r.rawBody)
	r.deliveryID = w.provider.DeliveryID(r.headers)

	secret := resolveSecret(w.provider, opts.Secret)

	if w.provider.VerificationMode() == VerificationRequired {
		if secret == "" {
			e := r.event(KindVerificationFailed)
			e.Reason = msgMissingSecret
			r.emit(e)
			r.callOnVerificationFailed(msgMissingSecret)
			return r.complete(failure(http.StatusUnauthorized, msgMissingSecret))
		}
		if !w.provider.Verify(r.rawBody, r.headers, secret) {
			e := r.event(KindVerificationFailed)
			e.Reason = msgVerificationFailed
			r.emit(e)
			r.callOnVerificationFailed(msgVerificationFailed)
			return r.complete(failure(http.StatusUnauthorized, msgVerificationFailed))
		}
		r.emit(r.event(KindVerificationSucceeded))
	}

	if w.replayPolicy != nil {
		if res, terminal := r.reserveReplay(); terminal {
			return r.complete(res)
		}
	}

	entry, registered := w.events[r.eventType]
	if r.eventType == "" || !registered {
		r.emit(r.event(KindEventUnhandled))
		res := ProcessResult{Status: http.StatusNoContent, EventType: r.eventType}
		return r.complete(r.finalizeReplay(res))
	}

	payloadBytes := r.rawBody
	if unwrapper, ok := w.provider.(PayloadUnwrapper); ok {
		if unwrapped, ok := unwrapper.Payload(r.rawBody); ok {
			payloadBytes = unwrapped
		}
	}
	var payload any
	if string(payloadBytes) == string(r.rawBody) {
		payload = parsed
	} else if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		e := r.event(KindJSONParseFailed)
		e.Err = err
		r.emit(e)
		res := failure(http.StatusBadRequest, msgInvalidJSON)
		res.EventType = r.eventType
		return r.complete(r.finalizeReplay(res))
	}

	if entry.schema != nil {
		validated, err := entry.schema.Validate(payload)
		if err != nil {
			e := r.event(KindSchemaValidationFailed)
			e.Err = err
			r.emit(e)
			r.callOnError(err, payload)
			res := failure(http.StatusBadRequest, msgSchemaInvalid)
			res.EventType = r.eventType
			return r.complete(r.finalizeReplay(res))
		}
		payload = validated
	}
	r.emit(r.event(KindSchemaValidationSucceeded))

	hctx := &HandlerContext{
		EventType:  r.eventType,
		Provider:   w.provider.Name(),
		DeliveryID: r.deliveryID,
		Headers:    r.headers,
		RawBody:    string(r.rawBody),
		ReceivedAt: r.receivedAt,
	}
	total := len(entry.handlers)
	for i, handler := range entry.handlers {
		e := r.event(KindHandlerStarted)
		e.HandlerIndex, e.HandlerCount = i, total
		r.emit(e)

		err := runHandler(ctx, handler, payload, hctx)
		if err != nil {
			e := r.event(KindHandlerFailed)
			e.HandlerIndex, e.HandlerCount = i, total
			e.Err = err
			r.emit(e)
			r.callOnError(err, payload)
			res := failure(http.StatusInternalServerError, msgHandlerFailed)
			res.EventType = r.eventType
			return r.complete(r.finalizeReplay(res))
		}
		e = r.event(KindHandlerSucceeded)
		e.HandlerIndex, e.HandlerCount = i, total
		r.emit(e)
	}

	res := ProcessResult{
		Status:    http.StatusOK,
		EventType: r.eventType,
		Body:      &ResultBody{OK: true},
	}
	return r.complete(r.finalizeReplay(res))
}

// runHandler invokes one handler, converting panics into errors so a
// misbehaving handler cannot take down the host.
func runHandler(ctx context.Context, handler Handler, payload any, hctx *HandlerContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("webhook: handler panic: %v", rec)
		}
	}()
	return handler(ctx, payload, hctx)
}

// reserveReplay runs the replay-protection stage. terminal=true means the
// returned result ends the request.
func (r *run) reserveReplay() (ProcessResult, bool) {
	policy := r.w.replayPolicy

	rctx := ReplayContext{
		Provider:   r.w.provider.Name(),
		EventType:  r.eventType,
		DeliveryID: r.deliveryID,
	}
	if extractor, ok := r.w.provider.(ReplayContextProvider); ok {
		if extracted, ok := extractor.ReplayContext(r.headers, r.rawBody); ok {
			extracted.Provider = rctx.Provider
			if extracted.EventType == "" {
				extracted.EventType = rctx.EventType
			}
			if extracted.DeliveryID == "" {
				extracted.DeliveryID = rctx.DeliveryID
			}
			rctx = extracted
		}
	}

	if policy.Tolerance > 0 && rctx.Timestamp != 0 {
		age := time.Since(time.Unix(rctx.Timestamp, 0))
		if age < 0 {
			age = -age
		}
		if age > policy.Tolerance {
			e := r.event(KindReplayFreshnessRejected)
			e.ReplayKey = rctx.ReplayKey
			r.emit(e)
			return failure(http.StatusConflict, msgStaleTimestamp), true
		}
	}

	key := policy.Key(rctx)
	if key == "" {
		r.emit(r.event(KindReplaySkipped))
		return ProcessResult{}, false
	}

	status, err := policy.Store.Reserve(r.ctx, key, policy.InFlightTTL)
	if err != nil {
		r.callOnError(err, nil)
		return failure(http.StatusInternalServerError, msgReplayStoreFailed), true
	}
	if status == replay.Duplicate {
		e := r.event(KindReplayDuplicate)
		e.ReplayKey = key
		r.emit(e)
		if policy.OnDuplicate == DuplicateIgnore {
			return ProcessResult{
				Status:    http.StatusOK,
				EventType: r.eventType,
				Body:      &ResultBody{OK: true},
			}, true
		}
		return failure(http.StatusConflict, msgDuplicateDelivery), true
	}

	e := r.event(KindReplayReserved)
	e.ReplayKey = key
	r.emit(e)
	r.heldKey = key
	return ProcessResult{}, false
}

// finalizeReplay commits the held reservation on success (200/204) and
// releases it otherwise. A store failure here degrades the result to 500.
func (r *run) finalizeReplay(res ProcessResult) ProcessResult {
	if r.heldKey == "" {
		return res
	}
	key := r.heldKey
	r.heldKey = ""
	policy := r.w.replayPolicy

	var err error
	var kind Kind
	if res.Status == http.StatusOK || res.Status == http.StatusNoContent {
		err = policy.Store.Commit(r.ctx, key, policy.TTL)
		kind = KindReplayCommitted
	} else {
		err = policy.Store.Release(r.ctx, key)
		kind = KindReplayReleased
	}
	if err != nil {
		r.callOnError(err, nil)
		res = failure(http.StatusInternalServerError, msgReplayStoreFailed)
		return res
	}
	e := r.event(kind)
	e.ReplayKey = key
	r.emit(e)
	return res
}

// resolveSecret applies the documented precedence: explicit option, provider
// inline secret, <NAME>_WEBHOOK_SECRET, then the global WEBHOOK_SECRET
// fallback shared across providers.
func resolveSecret(provider Provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if sp, ok := provider.(SecretProvider); ok {
		if secret := sp.Secret(); secret != "" {
			return secret
		}
	}
	if secret := os.Getenv(envSecretName(provider.Name())); secret != "" {
		return secret
	}
	return os.Getenv("WEBHOOK_SECRET")
}

// envSecretName maps a provider name to its environment variable, e.g.
// "github" -> "GITHUB_WEBHOOK_SECRET".
func envSecretName(name string) string {
	upper := strings.ToUpper(name)
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return mapped + "_WEBHOOK_SECRET"
}
