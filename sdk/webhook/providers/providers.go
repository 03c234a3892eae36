// Package providers bundles the wire conventions of well-known webhook
// sources — header names, signature schemes, envelope shapes, and replay
// metadata — behind the webhook.Provider contract. Each constructor returns
// a stateless provider safe to share across requests.
package providers

import (
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

// Options is the common construction knob set. The zero value enables
// required verification with secrets resolved from the environment.
type Options struct {
	// Secret pins the HMAC secret at construction time instead of relying
	// on ProcessOptions or environment lookup.
	Secret string
	// Disabled turns signature verification off. Intended for local
	// development against unsigned traffic.
	Disabled bool
}

func firstOption(opts []Options) Options {
	if len(opts) > 0 {
		return opts[0]
	}
	return Options{}
}

// base carries the fields every built-in provider shares.
type base struct {
	name   string
	secret string
	mode   webhook.VerificationMode
}

func newBase(name string, opts Options) base {
	mode := webhook.VerificationRequired
	if opts.Disabled {
		mode = webhook.VerificationDisabled
	}
	return base{name: name, secret: opts.Secret, mode: mode}
}

func (b base) Name() string                            { return b.name }
func (b base) VerificationMode() webhook.VerificationMode { return b.mode }
func (b base) Secret() string                          { return b.secret }

// disabledOrVerify standardizes the disabled-mode short circuit.
func (b base) disabledOrVerify(verify func() bool) bool {
	if b.mode == webhook.VerificationDisabled {
		return true
	}
	return verify()
}
