package providers

import (
	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var githubScheme = signature.Scheme{
	Algorithm: signature.SHA256,
	Encoding:  signature.Hex,
	Prefix:    "sha256=",
	Base:      signature.BaseBody,
}

type githubProvider struct {
	base
}

// GitHub verifies `x-hub-signature-256: sha256=<hex>` over the raw body and
// reads the event name and delivery ID from the x-github-* headers.
func GitHub(opts ...Options) webhook.Provider {
	return &githubProvider{base: newBase("github", firstOption(opts))}
}

func (p *githubProvider) EventType(h webhook.Headers, _ []byte) string {
	return h.Get("x-github-event")
}

func (p *githubProvider) DeliveryID(h webhook.Headers) string {
	return h.Get("x-github-delivery")
}

func (p *githubProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		provided := h.Get("x-hub-signature-256")
		if provided == "" {
			return false
		}
		return githubScheme.Verify([]byte(secret), signature.BaseInput{Body: rawBody}, provided)
	})
}

func (p *githubProvider) ReplayContext(h webhook.Headers, _ []byte) (webhook.ReplayContext, bool) {
	id := h.Get("x-github-delivery")
	if id == "" {
		return webhook.ReplayContext{}, false
	}
	return webhook.ReplayContext{ReplayKey: id, DeliveryID: id}, true
}
