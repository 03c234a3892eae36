package providers

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/webhook"
)

type discordProvider struct {
	base
}

// Discord verifies the Ed25519 signature Discord attaches to interaction
// webhooks: `x-signature-ed25519: <hex>` over the x-signature-timestamp
// header concatenated with the raw body. The "secret" is the application's
// hex-encoded public key.
func Discord(opts ...Options) webhook.Provider {
	return &discordProvider{base: newBase("discord", firstOption(opts))}
}

func (p *discordProvider) EventType(_ webhook.Headers, body []byte) string {
	// Gateway-style payloads name the event in "t"; interaction payloads
	// carry a numeric "type" discriminator.
	if t := gjson.GetBytes(body, "t").String(); t != "" {
		return t
	}
	if t := gjson.GetBytes(body, "type"); t.Exists() {
		return t.String()
	}
	return ""
}

func (p *discordProvider) DeliveryID(_ webhook.Headers) string {
	return ""
}

func (p *discordProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		sigHex := h.Get("x-signature-ed25519")
		timestamp := h.Get("x-signature-timestamp")
		if sigHex == "" || timestamp == "" {
			return false
		}
		publicKey, err := hex.DecodeString(secret)
		if err != nil || len(publicKey) != ed25519.PublicKeySize {
			return false
		}
		sig, err := hex.DecodeString(sigHex)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return false
		}
		message := append([]byte(timestamp), rawBody...)
		return ed25519.Verify(ed25519.PublicKey(publicKey), message, sig)
	})
}
