package dispatch

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/better-webhook/better-webhook/sdk/signature"
)

// ExecuteOptions describe one synthetic webhook dispatch. When Secret,
// Provider, and a body are all present, the provider's signature headers are
// synthesized over the encoded body.
type ExecuteOptions struct {
	URL      string
	Method   string
	Headers  map[string]string
	Body     any
	Secret   string
	Provider string
	Timeout  time.Duration
}

// Executor issues outbound webhooks, e.g. from templates.
type Executor struct {
	client *http.Client
}

// NewExecutor builds an executor. A nil client gets a default with the
// package timeout.
func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Executor{client: client}
}

// Execute merges provider baseline headers, encodes the body, signs when
// possible, and dispatches.
func (e *Executor) Execute(ctx context.Context, opts ExecuteOptions) (*Result, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("dispatch: URL is required")
	}
	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	headers := make(map[string]string)
	for key, value := range baselineHeaders[opts.Provider] {
		headers[key] = value
	}
	for key, value := range opts.Headers {
		setHeader(headers, key, value)
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	if body != nil && getHeader(headers, "Content-Type") == "" {
		headers["Content-Type"] = "application/json"
	}

	if opts.Secret != "" && opts.Provider != "" && body != nil {
		if err := signRequest(opts.Provider, opts.Secret, opts.URL, body, headers); err != nil {
			return nil, err
		}
	}

	client := e.client
	if opts.Timeout > 0 {
		clone := *client
		clone.Timeout = opts.Timeout
		client = &clone
	}
	return send(ctx, client, method, opts.URL, headers, body)
}

// encodeBody passes strings and byte slices through verbatim and
// JSON-encodes everything else.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("dispatch: encode body: %w", err)
		}
		return data, nil
	}
}

// baselineHeaders give an outbound request the shape receivers expect from
// the provider, so detectors and routing on the other end behave as they
// would for the real sender. Caller headers overlay these.
var baselineHeaders = map[string]map[string]string{
	"github": {
		"User-Agent":     "GitHub-Hookshot/0000000",
		"X-GitHub-Event": "push",
	},
	"stripe":   {"User-Agent": "Stripe/1.0"},
	"shopify":  {"X-Shopify-Topic": "orders/create"},
	"slack":    {"User-Agent": "Slackbot 1.0 (+https://api.slack.com/robots)"},
	"sendgrid": {"User-Agent": "SendGrid Event API"},
	"linear":   {"User-Agent": "Linear-Webhook"},
	"twilio":   {"User-Agent": "TwilioProxy/1.1"},
}

// wire schemes for synthetic signing; each mirrors the corresponding
// provider's verification convention.
var (
	githubSignScheme   = signature.Scheme{Algorithm: signature.SHA256, Encoding: signature.Hex, Prefix: "sha256=", Base: signature.BaseBody}
	githubSHA1Scheme   = signature.Scheme{Algorithm: signature.SHA1, Encoding: signature.Hex, Prefix: "sha1=", Base: signature.BaseBody}
	stripeSignScheme   = signature.Scheme{Algorithm: signature.SHA256, Encoding: signature.Hex, Base: signature.BaseTimestampDotBody}
	shopifySignScheme  = signature.Scheme{Algorithm: signature.SHA256, Encoding: signature.Base64, Base: signature.BaseBody}
	slackSignScheme    = signature.Scheme{Algorithm: signature.SHA256, Encoding: signature.Hex, Prefix: "v0=", Base: signature.BaseVersionedTimestamp}
	svixSignScheme     = signature.Scheme{Algorithm: signature.SHA256, Encoding: signature.Base64, Prefix: "v1,", Base: signature.BaseIDDotTimestampDotBody}
	twilioSignScheme   = signature.Scheme{Algorithm: signature.SHA1, Encoding: signature.Base64, Base: signature.BaseURLBody}
	sendgridSignScheme = signature.Scheme{Algorithm: signature.SHA256, Encoding: signature.Base64, Base: signature.BaseTimestampBody}
	linearSignScheme   = signature.Scheme{Algorithm: signature.SHA256, Encoding: signature.Hex, Base: signature.BaseBody}
	genericSignScheme  = signature.Scheme{Algorithm: signature.SHA256, Encoding: signature.Hex, Base: signature.BaseBody}
)

// signRequest inserts the provider's signature headers, harvesting
// timestamps and ids from the current header set or generating fresh ones.
func signRequest(provider, secret, url string, body []byte, h map[string]string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	key := []byte(secret)

	switch provider {
	case "github":
		sig256, err := githubSignScheme.Sign(key, signature.BaseInput{Body: body})
		if err != nil {
			return err
		}
		sig1, err := githubSHA1Scheme.Sign(key, signature.BaseInput{Body: body})
		if err != nil {
			return err
		}
		setHeader(h, "X-Hub-Signature-256", sig256)
		setHeader(h, "X-Hub-Signature", sig1)
		if getHeader(h, "X-GitHub-Delivery") == "" {
			setHeader(h, "X-GitHub-Delivery", uuid.NewString())
		}
	case "stripe":
		ts := harvestStripeTimestamp(h, now)
		sig, err := stripeSignScheme.Sign(key, signature.BaseInput{Body: body, Timestamp: ts})
		if err != nil {
			return err
		}
		setHeader(h, "Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, sig))
	case "shopify":
		sig, err := shopifySignScheme.Sign(key, signature.BaseInput{Body: body})
		if err != nil {
			return err
		}
		setHeader(h, "X-Shopify-Hmac-Sha256", sig)
	case "slack":
		ts := getHeader(h, "X-Slack-Request-Timestamp")
		if ts == "" {
			ts = now
		}
		sig, err := slackSignScheme.Sign(key, signature.BaseInput{Body: body, Timestamp: ts})
		if err != nil {
			return err
		}
		setHeader(h, "X-Slack-Request-Timestamp", ts)
		setHeader(h, "X-Slack-Signature", sig)
	case "svix", "clerk", "recall":
		id := getHeader(h, "Svix-Id")
		if id == "" {
			id = "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		ts := getHeader(h, "Svix-Timestamp")
		if ts == "" {
			ts = now
		}
		sig, err := svixSignScheme.Sign(svixSigningKey(secret), signature.BaseInput{Body: body, ID: id, Timestamp: ts})
		if err != nil {
			return err
		}
		setHeader(h, "Svix-Id", id)
		setHeader(h, "Svix-Timestamp", ts)
		setHeader(h, "Svix-Signature", sig)
	case "twilio":
		sig, err := twilioSignScheme.Sign(key, signature.BaseInput{Body: body, URL: url})
		if err != nil {
			return err
		}
		setHeader(h, "X-Twilio-Signature", sig)
	case "sendgrid":
		ts := getHeader(h, "X-Twilio-Email-Event-Webhook-Timestamp")
		if ts == "" {
			ts = now
		}
		sig, err := sendgridSignScheme.Sign(key, signature.BaseInput{Body: body, Timestamp: ts})
		if err != nil {
			return err
		}
		setHeader(h, "X-Twilio-Email-Event-Webhook-Timestamp", ts)
		setHeader(h, "X-Twilio-Email-Event-Webhook-Signature", sig)
	case "linear":
		sig, err := linearSignScheme.Sign(key, signature.BaseInput{Body: body})
		if err != nil {
			return err
		}
		setHeader(h, "Linear-Signature", sig)
	case "discord":
		return signDiscord(secret, now, body, h)
	default:
		sig, err := genericSignScheme.Sign(key, signature.BaseInput{Body: body})
		if err != nil {
			return err
		}
		setHeader(h, "X-Webhook-Signature", sig)
	}
	return nil
}

// harvestStripeTimestamp reuses the t= component of an existing
// Stripe-Signature header; otherwise the fresh timestamp is used.
func harvestStripeTimestamp(h map[string]string, fallback string) string {
	existing := getHeader(h, "Stripe-Signature")
	for _, part := range strings.Split(existing, ",") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(part), "t="); ok && value != "" {
			return value
		}
	}
	return fallback
}

// svixSigningKey decodes a whsec_ prefixed secret the way Svix receivers do;
// bare secrets are used as-is.
func svixSigningKey(secret string) []byte {
	if trimmed, ok := strings.CutPrefix(secret, "whsec_"); ok {
		if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
			return decoded
		}
	}
	return []byte(secret)
}

// signDiscord signs with Ed25519; the secret is the hex-encoded 32-byte
// seed (or 64-byte private key) rather than an HMAC secret.
func signDiscord(secret, ts string, body []byte, h map[string]string) error {
	raw, err := hex.DecodeString(secret)
	if err != nil {
		return fmt.Errorf("dispatch: discord secret must be hex: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return fmt.Errorf("dispatch: discord secret must be a %d or %d byte hex key", ed25519.SeedSize, ed25519.PrivateKeySize)
	}
	if existing := getHeader(h, "X-Signature-Timestamp"); existing != "" {
		ts = existing
	}
	message := append([]byte(ts), body...)
	sig := ed25519.Sign(priv, message)
	setHeader(h, "X-Signature-Timestamp", ts)
	setHeader(h, "X-Signature-Ed25519", hex.EncodeToString(sig))
	return nil
}
