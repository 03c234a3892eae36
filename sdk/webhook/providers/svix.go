package providers

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var svixScheme = signature.Scheme{
	Algorithm: signature.SHA256,
	Encoding:  signature.Base64,
	Prefix:    "v1,",
	Base:      signature.BaseIDDotTimestampDotBody,
}

// svixProvider implements the Svix signing convention shared by Clerk,
// Recall, and other Svix-based senders: `svix-signature` holds one or more
// space separated "v1,<base64>" entries over "<svix-id>.<svix-timestamp>.<body>".
type svixProvider struct {
	base
	// eventPath is the gjson path of the event type within the body.
	eventPath string
}

// Svix builds a provider for a generic Svix-based sender with the event type
// at the body's top-level "type" field.
func Svix(opts ...Options) webhook.Provider {
	return newSvix("svix", "type", firstOption(opts))
}

// Clerk is Svix-based; event type lives at body "type" (e.g. "user.created").
func Clerk(opts ...Options) webhook.Provider {
	return newSvix("clerk", "type", firstOption(opts))
}

// Recall is Svix-based; event type lives at body "event" (e.g. "bot.done").
func Recall(opts ...Options) webhook.Provider {
	return newSvix("recall", "event", firstOption(opts))
}

func newSvix(name, eventPath string, opts Options) webhook.Provider {
	return &svixProvider{base: newBase(name, opts), eventPath: eventPath}
}

// svixKey decodes a `whsec_` prefixed secret; the HMAC key is the base64
// decoded remainder. Bare secrets are used as-is.
func svixKey(secret string) []byte {
	if trimmed, ok := strings.CutPrefix(secret, "whsec_"); ok {
		if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
			return decoded
		}
	}
	return []byte(secret)
}

func (p *svixProvider) EventType(_ webhook.Headers, body []byte) string {
	return gjson.GetBytes(body, p.eventPath).String()
}

func (p *svixProvider) DeliveryID(h webhook.Headers) string {
	return h.Get("svix-id")
}

func (p *svixProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		id := h.Get("svix-id")
		timestamp := h.Get("svix-timestamp")
		provided := h.Get("svix-signature")
		if id == "" || timestamp == "" || provided == "" {
			return false
		}
		in := signature.BaseInput{Body: rawBody, ID: id, Timestamp: timestamp}
		return svixScheme.VerifyAny(svixKey(secret), in, strings.Fields(provided))
	})
}

func (p *svixProvider) ReplayContext(h webhook.Headers, _ []byte) (webhook.ReplayContext, bool) {
	rctx := webhook.ReplayContext{
		ReplayKey:  h.Get("svix-id"),
		DeliveryID: h.Get("svix-id"),
	}
	if raw := h.Get("svix-timestamp"); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			rctx.Timestamp = ts
		}
	}
	if rctx.ReplayKey == "" {
		return webhook.ReplayContext{}, false
	}
	return rctx, true
}
