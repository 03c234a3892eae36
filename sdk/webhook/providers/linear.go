package providers

import (
	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var linearScheme = signature.Scheme{
	Algorithm: signature.SHA256,
	Encoding:  signature.Hex,
	Base:      signature.BaseBody,
}

type linearProvider struct {
	base
}

// Linear verifies `linear-signature: <hex>` over the raw body. The body's
// "type" field names the affected entity.
func Linear(opts ...Options) webhook.Provider {
	return &linearProvider{base: newBase("linear", firstOption(opts))}
}

func (p *linearProvider) EventType(_ webhook.Headers, body []byte) string {
	return gjson.GetBytes(body, "type").String()
}

func (p *linearProvider) DeliveryID(h webhook.Headers) string {
	return h.Get("linear-delivery")
}

func (p *linearProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		provided := h.Get("linear-signature")
		if provided == "" {
			return false
		}
		return linearScheme.Verify([]byte(secret), signature.BaseInput{Body: rawBody}, provided)
	})
}

func (p *linearProvider) ReplayContext(h webhook.Headers, _ []byte) (webhook.ReplayContext, bool) {
	id := h.Get("linear-delivery")
	if id == "" {
		return webhook.ReplayContext{}, false
	}
	return webhook.ReplayContext{ReplayKey: id, DeliveryID: id}, true
}
