package providers

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var ragieScheme = signature.Scheme{
	Algorithm: signature.SHA256,
	Encoding:  signature.Hex,
	Base:      signature.BaseBody,
}

type ragieProvider struct {
	base
}

// Ragie wraps its payload in a `{type, payload, nonce}` envelope signed with
// `x-signature: <hex>` over the raw body. Payload unwrapping folds the
// envelope nonce into the payload so handlers keep the dedup material.
func Ragie(opts ...Options) webhook.Provider {
	return &ragieProvider{base: newBase("ragie", firstOption(opts))}
}

func (p *ragieProvider) EventType(_ webhook.Headers, body []byte) string {
	return gjson.GetBytes(body, "type").String()
}

func (p *ragieProvider) DeliveryID(_ webhook.Headers) string {
	return ""
}

func (p *ragieProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		provided := h.Get("x-signature")
		if provided == "" {
			return false
		}
		return ragieScheme.Verify([]byte(secret), signature.BaseInput{Body: rawBody}, provided)
	})
}

// Payload implements webhook.PayloadUnwrapper.
func (p *ragieProvider) Payload(body []byte) ([]byte, bool) {
	payload := gjson.GetBytes(body, "payload")
	if !payload.Exists() || !payload.IsObject() {
		return nil, false
	}
	raw := []byte(payload.Raw)
	if nonce := gjson.GetBytes(body, "nonce"); nonce.Exists() {
		if merged, err := sjson.SetBytes(raw, "nonce", nonce.Value()); err == nil {
			raw = merged
		}
	}
	return raw, true
}

func (p *ragieProvider) ReplayContext(_ webhook.Headers, body []byte) (webhook.ReplayContext, bool) {
	nonce := gjson.GetBytes(body, "nonce").String()
	if nonce == "" {
		return webhook.ReplayContext{}, false
	}
	return webhook.ReplayContext{ReplayKey: nonce}, true
}
