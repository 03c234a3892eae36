package webhook

// VerificationMode controls whether the pipeline demands a valid signature
// before running handlers.
type VerificationMode string

const (
	// VerificationRequired refuses the request unless a secret is resolved
	// and the provider's Verify accepts the body.
	VerificationRequired VerificationMode = "required"
	// VerificationDisabled skips signature checking entirely.
	VerificationDisabled VerificationMode = "disabled"
)

// Provider is the capability bundle that adapts one webhook source's wire
// conventions to the pipeline. Implementations must be safe for concurrent
// use; one instance is shared by all requests.
//
// Providers may additionally implement PayloadUnwrapper, ReplayContextProvider,
// or SecretProvider to opt into envelope unwrapping, replay protection
// metadata, and construction-time secrets.
type Provider interface {
	// Name identifies the provider. It is used for observation events and
	// for the <NAME>_WEBHOOK_SECRET environment lookup.
	Name() string
	// VerificationMode reports whether signature verification is enforced.
	VerificationMode() VerificationMode
	// EventType extracts the event name from the normalized headers and,
	// for providers that embed it there, the raw JSON body. Empty string
	// means the event type is unknown.
	EventType(h Headers, body []byte) string
	// DeliveryID extracts the provider-assigned delivery identifier, or ""
	// when the provider has none.
	DeliveryID(h Headers) string
	// Verify checks the signature over the verbatim body bytes. It must
	// return true when VerificationMode is disabled.
	Verify(rawBody []byte, h Headers, secret string) bool
}

// PayloadUnwrapper is implemented by providers whose payload is nested in an
// envelope. Payload returns the bytes handed to schema validation; ok=false
// falls back to the full body.
type PayloadUnwrapper interface {
	Payload(body []byte) (payload []byte, ok bool)
}

// ReplayContext is the idempotency material a provider extracts from a
// delivery. Timestamp is unix seconds, 0 when the provider carries none.
type ReplayContext struct {
	Provider   string
	EventType  string
	DeliveryID string
	ReplayKey  string
	Timestamp  int64
}

// ReplayContextProvider is implemented by providers that expose replay
// metadata. ok=false leaves replay protection to the policy's key function
// operating on delivery ID alone.
type ReplayContextProvider interface {
	ReplayContext(h Headers, body []byte) (rctx ReplayContext, ok bool)
}

// SecretProvider is implemented by providers constructed with an inline
// secret, consulted after ProcessOptions.Secret and before the environment.
type SecretProvider interface {
	Secret() string
}
