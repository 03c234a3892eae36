package providers

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

var stripeScheme = signature.Scheme{
	Algorithm: signature.SHA256,
	Encoding:  signature.Hex,
	Base:      signature.BaseTimestampDotBody,
}

type stripeProvider struct {
	base
}

// Stripe verifies the compound `stripe-signature: t=<ts>,v1=<hex>` header,
// signing "<t>.<body>". The event type and event ID live in the body.
func Stripe(opts ...Options) webhook.Provider {
	return &stripeProvider{base: newBase("stripe", firstOption(opts))}
}

// parseStripeSignature splits the compound header into the timestamp and the
// v1 candidate list. Unknown pairs are ignored per Stripe's guidance.
func parseStripeSignature(header string) (timestamp string, candidates []string) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	return timestamp, candidates
}

func (p *stripeProvider) EventType(_ webhook.Headers, body []byte) string {
	return gjson.GetBytes(body, "type").String()
}

func (p *stripeProvider) DeliveryID(_ webhook.Headers) string {
	// Stripe carries no delivery header; the event ID lives in the body and
	// is surfaced via ReplayContext instead.
	return ""
}

func (p *stripeProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		timestamp, candidates := parseStripeSignature(h.Get("stripe-signature"))
		if timestamp == "" || len(candidates) == 0 {
			return false
		}
		in := signature.BaseInput{Body: rawBody, Timestamp: timestamp}
		return stripeScheme.VerifyAny([]byte(secret), in, candidates)
	})
}

func (p *stripeProvider) ReplayContext(h webhook.Headers, body []byte) (webhook.ReplayContext, bool) {
	rctx := webhook.ReplayContext{
		ReplayKey: gjson.GetBytes(body, "id").String(),
	}
	if timestamp, _ := parseStripeSignature(h.Get("stripe-signature")); timestamp != "" {
		if ts, err := strconv.ParseInt(timestamp, 10, 64); err == nil {
			rctx.Timestamp = ts
		}
	}
	if rctx.ReplayKey == "" && rctx.Timestamp == 0 {
		return webhook.ReplayContext{}, false
	}
	return rctx, true
}
