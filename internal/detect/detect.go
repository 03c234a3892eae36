// Package detect guesses which provider sent a captured request by probing
// its headers and body. Detectors are heuristics; the registry picks the
// highest-confidence answer and falls back to "unknown".
package detect

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/webhook"
)

// Unknown is returned when no detector recognizes the request.
const Unknown = "unknown"

// Input is the material detectors may inspect.
type Input struct {
	Method  string
	Path    string
	Headers webhook.Headers
	Body    []byte
}

// Detection is one detector's answer. Confidence is in (0, 1].
type Detection struct {
	Provider   string
	Confidence float64
}

// Detector inspects a request and returns nil when it does not recognize it.
type Detector func(Input) *Detection

// Registry holds detectors in registration order. The highest confidence
// wins; ties go to the earlier registration.
type Registry struct {
	detectors []Detector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a detector.
func (r *Registry) Register(d Detector) {
	r.detectors = append(r.detectors, d)
}

// Detect runs every detector and returns the winning provider name.
func (r *Registry) Detect(in Input) string {
	best := ""
	bestConfidence := 0.0
	for _, detector := range r.detectors {
		d := detector(in)
		if d == nil || d.Provider == "" {
			continue
		}
		if d.Confidence > bestConfidence {
			best = d.Provider
			bestConfidence = d.Confidence
		}
	}
	if best == "" {
		return Unknown
	}
	return best
}

// Header builds a detector that recognizes a provider by the presence of
// one header. Used for the built-in heuristics and for user-configured
// providers.
func Header(header, provider string, confidence float64) Detector {
	return func(in Input) *Detection {
		if !in.Headers.Has(header) {
			return nil
		}
		return &Detection{Provider: provider, Confidence: confidence}
	}
}

// svixDetector disambiguates Svix-based senders. Recall events start with
// "bot." or "transcript."; Clerk bodies carry an "object": "event"
// discriminator alongside "type".
func svixDetector(in Input) *Detection {
	hasSvix := in.Headers.Has("svix-signature") ||
		(in.Headers.Has("webhook-signature") && in.Headers.Has("webhook-id"))
	if !hasSvix {
		return nil
	}
	event := gjson.GetBytes(in.Body, "event").String()
	if strings.HasPrefix(event, "bot.") || strings.HasPrefix(event, "transcript.") {
		return &Detection{Provider: "recall", Confidence: 0.95}
	}
	if gjson.GetBytes(in.Body, "object").String() == "event" && gjson.GetBytes(in.Body, "type").Exists() {
		return &Detection{Provider: "clerk", Confidence: 0.9}
	}
	return &Detection{Provider: "svix", Confidence: 0.6}
}

// Default returns a registry preloaded with the built-in heuristics.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Header("x-github-event", "github", 0.95))
	r.Register(Header("stripe-signature", "stripe", 0.95))
	r.Register(svixDetector)
	r.Register(Header("x-shopify-topic", "shopify", 0.95))
	r.Register(Header("x-slack-signature", "slack", 0.95))
	r.Register(Header("linear-signature", "linear", 0.9))
	r.Register(Header("x-twilio-signature", "twilio", 0.9))
	r.Register(Header("x-twilio-email-event-webhook-signature", "sendgrid", 0.9))
	r.Register(Header("x-signature-ed25519", "discord", 0.9))
	return r
}
