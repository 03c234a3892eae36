package providers

import (
	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var twilioScheme = signature.Scheme{
	Algorithm: signature.SHA1,
	Encoding:  signature.Base64,
	Base:      signature.BaseURLBody,
}

type twilioProvider struct {
	base
	webhookURL string
}

// Twilio verifies `x-twilio-signature: <base64>` over the concatenation of
// the full webhook URL and the raw body via HMAC-SHA1. The URL Twilio signed
// is not recoverable from the request headers, so it must be configured.
func Twilio(webhookURL string, opts ...Options) webhook.Provider {
	return &twilioProvider{
		base:       newBase("twilio", firstOption(opts)),
		webhookURL: webhookURL,
	}
}

func (p *twilioProvider) EventType(_ webhook.Headers, body []byte) string {
	// Twilio Event Streams webhooks carry the type in the body; classic
	// form posts have no event name.
	return gjson.GetBytes(body, "type").String()
}

func (p *twilioProvider) DeliveryID(h webhook.Headers) string {
	return h.Get("i-twilio-idempotency-token")
}

func (p *twilioProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		provided := h.Get("x-twilio-signature")
		if provided == "" || p.webhookURL == "" {
			return false
		}
		in := signature.BaseInput{Body: rawBody, URL: p.webhookURL}
		return twilioScheme.Verify([]byte(secret), in, provided)
	})
}

func (p *twilioProvider) ReplayContext(h webhook.Headers, _ []byte) (webhook.ReplayContext, bool) {
	token := h.Get("i-twilio-idempotency-token")
	if token == "" {
		return webhook.ReplayContext{}, false
	}
	return webhook.ReplayContext{ReplayKey: token, DeliveryID: token}, true
}
