package providers

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
)

// Config declares a provider without code, e.g. from a YAML document. Only
// Name is required; unset signature fields default to a bare hex HMAC-SHA256
// over the body, read from x-webhook-signature.
type Config struct {
	Name     string `yaml:"name" json:"name"`
	Disabled bool   `yaml:"disabled" json:"disabled"`
	Secret   string `yaml:"secret" json:"secret"`

	// EventHeader is consulted before EventPaths; EventPaths are gjson body
	// paths tried in declaration order.
	EventHeader string   `yaml:"event-header" json:"eventHeader"`
	EventPaths  []string `yaml:"event-paths" json:"eventPaths"`

	DeliveryHeader string `yaml:"delivery-header" json:"deliveryHeader"`

	SignatureHeader string              `yaml:"signature-header" json:"signatureHeader"`
	Algorithm       signature.Algorithm `yaml:"algorithm" json:"algorithm"`
	Encoding        signature.Encoding  `yaml:"encoding" json:"encoding"`
	Prefix          string              `yaml:"prefix" json:"prefix"`
	Base            signature.BaseKind  `yaml:"base" json:"base"`

	// TimestampHeader and IDHeader feed schemes whose base string includes
	// them; SignedURL feeds url+body schemes.
	TimestampHeader string `yaml:"timestamp-header" json:"timestampHeader"`
	IDHeader        string `yaml:"id-header" json:"idHeader"`
	SignedURL       string `yaml:"signed-url" json:"signedURL"`

	// ReplayKeyHeader names the header used as the idempotency key.
	ReplayKeyHeader string `yaml:"replay-key-header" json:"replayKeyHeader"`
}

type configProvider struct {
	base
	cfg    Config
	scheme signature.Scheme
}

// FromConfig builds a provider from a declarative description.
func FromConfig(cfg Config) (webhook.Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("providers: config requires a name")
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "x-webhook-signature"
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = signature.SHA256
	}
	if cfg.Encoding == "" {
		cfg.Encoding = signature.Hex
	}
	if cfg.Base == "" {
		cfg.Base = signature.BaseBody
	}
	switch cfg.Algorithm {
	case signature.SHA1, signature.SHA256, signature.SHA384, signature.SHA512:
	default:
		return nil, fmt.Errorf("providers: unsupported algorithm %q", cfg.Algorithm)
	}
	return &configProvider{
		base: newBase(cfg.Name, Options{Secret: cfg.Secret, Disabled: cfg.Disabled}),
		cfg:  cfg,
		scheme: signature.Scheme{
			Algorithm: cfg.Algorithm,
			Encoding:  cfg.Encoding,
			Prefix:    cfg.Prefix,
			Base:      cfg.Base,
		},
	}, nil
}

// Generic is a code-free provider: bare hex HMAC-SHA256 over the body in
// x-webhook-signature, event type from the body's "type" field.
func Generic(name string, opts ...Options) webhook.Provider {
	opt := firstOption(opts)
	p, err := FromConfig(Config{
		Name:       name,
		Disabled:   opt.Disabled,
		Secret:     opt.Secret,
		EventPaths: []string{"type"},
	})
	if err != nil {
		panic(err)
	}
	return p
}

func (p *configProvider) EventType(h webhook.Headers, body []byte) string {
	if p.cfg.EventHeader != "" {
		if event := h.Get(p.cfg.EventHeader); event != "" {
			return event
		}
	}
	for _, path := range p.cfg.EventPaths {
		if event := gjson.GetBytes(body, path).String(); event != "" {
			return event
		}
	}
	return ""
}

func (p *configProvider) DeliveryID(h webhook.Headers) string {
	if p.cfg.DeliveryHeader == "" {
		return ""
	}
	return h.Get(p.cfg.DeliveryHeader)
}

func (p *configProvider) Verify(rawBody []byte, h webhook.Headers, secret string) bool {
	return p.disabledOrVerify(func() bool {
		provided := h.Get(p.cfg.SignatureHeader)
		if provided == "" {
			return false
		}
		in := signature.BaseInput{
			Body:      rawBody,
			Timestamp: h.Get(p.cfg.TimestampHeader),
			ID:        h.Get(p.cfg.IDHeader),
			URL:       p.cfg.SignedURL,
		}
		return p.scheme.Verify([]byte(secret), in, provided)
	})
}

func (p *configProvider) ReplayContext(h webhook.Headers, _ []byte) (webhook.ReplayContext, bool) {
	rctx := webhook.ReplayContext{}
	if p.cfg.ReplayKeyHeader != "" {
		rctx.ReplayKey = h.Get(p.cfg.ReplayKeyHeader)
	}
	if p.cfg.TimestampHeader != "" {
		if ts, err := strconv.ParseInt(h.Get(p.cfg.TimestampHeader), 10, 64); err == nil {
			rctx.Timestamp = ts
		}
	}
	if rctx.ReplayKey == "" && rctx.Timestamp == 0 {
		return webhook.ReplayContext{}, false
	}
	return rctx, true
}
