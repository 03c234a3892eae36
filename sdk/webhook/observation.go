package webhook

import "time"

// Kind names one lifecycle observation emitted by the pipeline.
type Kind string

const (
	KindRequestReceived           Kind = "request_received"
	KindBodyTooLarge              Kind = "body_too_large"
	KindJSONParseFailed           Kind = "json_parse_failed"
	KindVerificationSucceeded     Kind = "verification_succeeded"
	KindVerificationFailed        Kind = "verification_failed"
	KindReplaySkipped             Kind = "replay_skipped"
	KindReplayFreshnessRejected   Kind = "replay_freshness_rejected"
	KindReplayReserved            Kind = "replay_reserved"
	KindReplayDuplicate           Kind = "replay_duplicate"
	KindReplayCommitted           Kind = "replay_committed"
	KindReplayReleased            Kind = "replay_released"
	KindEventUnhandled            Kind = "event_unhandled"
	KindSchemaValidationSucceeded Kind = "schema_validation_succeeded"
	KindSchemaValidationFailed    Kind = "schema_validation_failed"
	KindHandlerStarted            Kind = "handler_started"
	KindHandlerSucceeded          Kind = "handler_succeeded"
	KindHandlerFailed             Kind = "handler_failed"
	KindCompleted                 Kind = "completed"
)

// Event is one pipeline observation. Every event carries the common base
// fields; variant fields are populated per Kind and zero otherwise.
type Event struct {
	Kind Kind

	// Common base.
	Provider     string
	EventType    string
	DeliveryID   string
	RawBodyBytes int
	StartTime    time.Time
	ReceivedAt   time.Time

	// verification_failed.
	Reason string
	// schema_validation_failed, handler_failed.
	Err error
	// handler_started / handler_succeeded / handler_failed.
	HandlerIndex int
	HandlerCount int
	// replay_* variants.
	ReplayKey string
	// completed.
	Status   int
	Success  bool
	Duration time.Duration
}

// Observer consumes pipeline observations. Implementations must not block;
// emission is synchronous on the request path. A panic inside Observe is
// swallowed and never affects the request outcome.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

// emit fans the event out to every observer in registration order, isolating
// the pipeline from observer panics.
func emit(observers []Observer, e Event) {
	for _, obs := range observers {
		func() {
			defer func() { _ = recover() }()
			obs.Observe(e)
		}()
	}
}
