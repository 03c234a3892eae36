package providers

import (
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var sendgridScheme = signature.Scheme{
	Algorithm: signature.SHA256,
	Encoding:  signature.Base64,
	Base:      signature.BaseTimestampBody,
}

type sendgridProvider struct {
	base
}

// SendGrid verifies `x-twilio-email-event-webhook-signature: <base64>` over
// the timestamp header concatenated with the raw body. Event webhooks are
// posted as arrays; the first element's "event" names the type.
func SendGrid(opts ...Options) webhook.Provider {
	return &sendgridProvider{base: newBase("sendgrid", firstOption(opts))}
}

func (p *sendgridProvider) EventType(_ webhook.Headers, body []byte) string {
	return gjson.GetBytes(body, "0.event").String()
}

func (p *sendgridProvider) DeliveryID(_ webhook.Headers) string {
	return ""
}

func (p *sendgridProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		timestamp := h.Get("x-twilio-email-event-webhook-timestamp")
		provided := h.Get("x-twilio-email-event-webhook-signature")
		if timestamp == "" || provided == "" {
			return false
		}
		in := signature.BaseInput{Body: rawBody, Timestamp: timestamp}
		return sendgridScheme.Verify([]byte(secret), in, provided)
	})
}

func (p *sendgridProvider) ReplayContext(h webhook.Headers, body []byte) (webhook.ReplayContext, bool) {
	rctx := webhook.ReplayContext{
		ReplayKey: gjson.GetBytes(body, "0.sg_event_id").String(),
	}
	if raw := h.Get("x-twilio-email-event-webhook-timestamp"); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			rctx.Timestamp = ts
		}
	}
	if rctx.ReplayKey == "" && rctx.Timestamp == 0 {
		return webhook.ReplayContext{}, false
	}
	return rctx, true
}
