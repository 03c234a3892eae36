package providers

import (
	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var shopifyScheme = signature.Scheme{
	Algorithm: signature.SHA256,
	Encoding:  signature.Base64,
	Base:      signature.BaseBody,
}

type shopifyProvider struct {
	base
}

// Shopify verifies `x-shopify-hmac-sha256: <base64>` over the raw body. The
// topic header doubles as the event type.
func Shopify(opts ...Options) webhook.Provider {
	return &shopifyProvider{base: newBase("shopify", firstOption(opts))}
}

func (p *shopifyProvider) EventType(h webhook.Headers, _ []byte) string {
	return h.Get("x-shopify-topic")
}

func (p *shopifyProvider) DeliveryID(h webhook.Headers) string {
	return h.Get("x-shopify-webhook-id")
}

func (p *shopifyProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		provided := h.Get("x-shopify-hmac-sha256")
		if provided == "" {
			return false
		}
		return shopifyScheme.Verify([]byte(secret), signature.BaseInput{Body: rawBody}, provided)
	})
}

func (p *shopifyProvider) ReplayContext(h webhook.Headers, _ []byte) (webhook.ReplayContext, bool) {
	id := h.Get("x-shopify-webhook-id")
	if id == "" {
		return webhook.ReplayContext{}, false
	}
	return webhook.ReplayContext{ReplayKey: id, DeliveryID: id}, true
}
