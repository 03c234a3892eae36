package providers

import (
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var slackScheme = signature.Scheme{
	Algorithm: signature.SHA256,
	Encoding:  signature.Hex,
	Prefix:    "v0=",
	Base:      signature.BaseVersionedTimestamp,
}

type slackProvider struct {
	base
}

// Slack verifies `x-slack-signature: v0=<hex>` over "v0:<ts>:<body>" with
// the timestamp taken from x-slack-request-timestamp. Event callbacks carry
// the concrete event type nested under event.type.
func Slack(opts ...Options) webhook.Provider {
	return &slackProvider{base: newBase("slack", firstOption(opts))}
}

func (p *slackProvider) EventType(_ webhook.Headers, body []byte) string {
	outer := gjson.GetBytes(body, "type").String()
	if outer == "event_callback" {
		if inner := gjson.GetBytes(body, "event.type").String(); inner != "" {
			return inner
		}
	}
	return outer
}

func (p *slackProvider) DeliveryID(_ webhook.Headers) string {
	return ""
}

func (p *slackProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		timestamp := h.Get("x-slack-request-timestamp")
		provided := h.Get("x-slack-signature")
		if timestamp == "" || provided == "" {
			return false
		}
		in := signature.BaseInput{Body: rawBody, Timestamp: timestamp}
		return slackScheme.Verify([]byte(secret), in, provided)
	})
}

func (p *slackProvider) ReplayContext(h webhook.Headers, body []byte) (webhook.ReplayContext, bool) {
	rctx := webhook.ReplayContext{
		ReplayKey: gjson.GetBytes(body, "event_id").String(),
	}
	if raw := h.Get("x-slack-request-timestamp"); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			rctx.Timestamp = ts
		}
	}
	if rctx.ReplayKey == "" && rctx.Timestamp == 0 {
		return webhook.ReplayContext{}, false
	}
	return rctx, true
}
