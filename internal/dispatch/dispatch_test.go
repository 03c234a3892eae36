package dispatch

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-webhook/better-webhook/internal/capture"
	"github.com/better-webhook/better-webhook/sdk/webhook"
	"github.com/better-webhook/better-webhook/sdk/webhook/providers"
)

type received struct {
	method  string
	headers http.Header
	body    []byte
}

func target(t *testing.T) (*httptest.Server, *received) {
	t.Helper()
	got := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		got.body = body
		w.Header().Set("X-Echo", "1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func savedCapture(t *testing.T, store *capture.Store, rec capture.Record) string {
	t.Helper()
	_, err := store.Save(rec)
	require.NoError(t, err)
	return rec.ID
}

func TestReplay_StripsHopByHopAndOverlays(t *testing.T) {
	store, err := capture.NewStore(t.TempDir())
	require.NoError(t, err)
	srv, got := target(t)

	id := savedCapture(t, store, capture.Record{
		ID:        uuid.NewString(),
		Timestamp: capture.FormatTimestamp(time.Now()),
		Method:    "POST",
		Path:      "/hook",
		Headers: map[string]string{
			"Host":            "original.example",
			"Content-Length":  "17",
			"Connection":      "keep-alive",
			"Accept-Encoding": "gzip",
			"X-GitHub-Event":  "push",
			"Content-Type":    "application/json",
		},
		RawBody: `{"action":"push"}`,
	})

	r := NewReplayer(store, nil)
	res, err := r.Replay(context.Background(), id, ReplayOptions{
		TargetURL: srv.URL,
		Headers:   map[string]string{"x-github-event": "pull_request", "X-Extra": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.Equal(t, "Accepted", res.StatusText)
	assert.Equal(t, `{"ok":true}`, res.Body)
	assert.Equal(t, "1", res.Headers["X-Echo"])
	assert.Greater(t, res.Duration, time.Duration(0))

	assert.Equal(t, "POST", got.method)
	assert.Equal(t, `{"action":"push"}`, string(got.body), "raw body forwarded verbatim")
	assert.Equal(t, "pull_request", got.headers.Get("X-Github-Event"), "caller overlay wins case-insensitively")
	assert.Equal(t, "1", got.headers.Get("X-Extra"))
	assert.NotEqual(t, "original.example", got.headers.Get("Host"), "captured Host not forwarded")
	assert.Empty(t, got.headers.Get("Accept-Encoding-Original"))
}

func TestReplay_MethodOverrideAndParsedBodyFallback(t *testing.T) {
	store, err := capture.NewStore(t.TempDir())
	require.NoError(t, err)
	srv, got := target(t)

	id := savedCapture(t, store, capture.Record{
		ID:        uuid.NewString(),
		Timestamp: capture.FormatTimestamp(time.Now()),
		Method:    "POST",
		Path:      "/hook",
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      map[string]any{"n": 1},
	})

	r := NewReplayer(store, nil)
	res, err := r.Replay(context.Background(), id, ReplayOptions{TargetURL: srv.URL, Method: "PUT"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.Equal(t, "PUT", got.method)
	assert.JSONEq(t, `{"n":1}`, string(got.body), "parsed body re-encoded when raw body absent")
}

func TestReplay_CaptureNotFound(t *testing.T) {
	store, err := capture.NewStore(t.TempDir())
	require.NoError(t, err)

	r := NewReplayer(store, nil)
	_, err = r.Replay(context.Background(), "missing", ReplayOptions{TargetURL: "http://localhost:1"})
	assert.ErrorIs(t, err, ErrCaptureNotFound)
}

func TestReplay_TransportErrorIsExecutionError(t *testing.T) {
	store, err := capture.NewStore(t.TempDir())
	require.NoError(t, err)
	id := savedCapture(t, store, capture.Record{
		ID:        uuid.NewString(),
		Timestamp: capture.FormatTimestamp(time.Now()),
		Method:    "POST",
		RawBody:   "{}",
	})

	r := NewReplayer(store, &http.Client{Timeout: 200 * time.Millisecond})
	_, err = r.Replay(context.Background(), id, ReplayOptions{TargetURL: "http://127.0.0.1:1/unreachable"})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.GreaterOrEqual(t, execErr.Duration, time.Duration(0))
}

func TestExecute_DefaultsAndBodyEncoding(t *testing.T) {
	srv, got := target(t)

	e := NewExecutor(nil)
	res, err := e.Execute(context.Background(), ExecuteOptions{
		URL:  srv.URL,
		Body: map[string]any{"hello": "world"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.Equal(t, "POST", got.method, "method defaults to POST")
	assert.Equal(t, "application/json", got.headers.Get("Content-Type"))
	assert.JSONEq(t, `{"hello":"world"}`, string(got.body))
}

func TestExecute_BaselineHeadersAndOverlay(t *testing.T) {
	srv, got := target(t)

	e := NewExecutor(nil)
	_, err := e.Execute(context.Background(), ExecuteOptions{
		URL:      srv.URL,
		Provider: "github",
		Body:     `{"action":"opened"}`,
		Headers:  map[string]string{"x-github-event": "pull_request"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pull_request", got.headers.Get("X-Github-Event"), "caller overlay beats baseline")
	assert.Contains(t, got.headers.Get("User-Agent"), "GitHub-Hookshot")
}

func TestExecute_SyntheticSignaturesVerify(t *testing.T) {
	const secret = "top-secret"
	body := `{"type":"demo.event","id":"evt_1"}`

	cases := []struct {
		name     string
		provider string
		verifier func(t *testing.T, raw []byte, h webhook.Headers) bool
	}{
		{"github", "github", func(t *testing.T, raw []byte, h webhook.Headers) bool {
			return providers.GitHub().Verify(raw, h, secret)
		}},
		{"stripe", "stripe", func(t *testing.T, raw []byte, h webhook.Headers) bool {
			return providers.Stripe().Verify(raw, h, secret)
		}},
		{"shopify", "shopify", func(t *testing.T, raw []byte, h webhook.Headers) bool {
			return providers.Shopify().Verify(raw, h, secret)
		}},
		{"slack", "slack", func(t *testing.T, raw []byte, h webhook.Headers) bool {
			return providers.Slack().Verify(raw, h, secret)
		}},
		{"svix", "svix", func(t *testing.T, raw []byte, h webhook.Headers) bool {
			return providers.Svix().Verify(raw, h, secret)
		}},
		{"linear", "linear", func(t *testing.T, raw []byte, h webhook.Headers) bool {
			return providers.Linear().Verify(raw, h, secret)
		}},
		{"sendgrid", "sendgrid", func(t *testing.T, raw []byte, h webhook.Headers) bool {
			return providers.SendGrid().Verify(raw, h, secret)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := target(t)
			e := NewExecutor(nil)
			_, err := e.Execute(context.Background(), ExecuteOptions{
				URL:      srv.URL,
				Provider: tc.provider,
				Secret:   secret,
				Body:     body,
			})
			require.NoError(t, err)
			h := webhook.NormalizeHeaders(got.headers)
			assert.True(t, tc.verifier(t, got.body, h), "receiver-side verification must accept the synthetic signature")
		})
	}
}

func TestExecute_TwilioSignatureVerifiesAgainstURL(t *testing.T) {
	const secret = "twilio-token"
	srv, got := target(t)

	e := NewExecutor(nil)
	_, err := e.Execute(context.Background(), ExecuteOptions{
		URL:      srv.URL,
		Provider: "twilio",
		Secret:   secret,
		Body:     `{"CallSid":"CA123"}`,
	})
	require.NoError(t, err)

	h := webhook.NormalizeHeaders(got.headers)
	ok := providers.Twilio(srv.URL).Verify(got.body, h, secret)
	assert.True(t, ok)
}

func TestExecute_DiscordEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	srv, got := target(t)

	e := NewExecutor(nil)
	_, err = e.Execute(context.Background(), ExecuteOptions{
		URL:      srv.URL,
		Provider: "discord",
		Secret:   hex.EncodeToString(priv.Seed()),
		Body:     `{"type":1}`,
	})
	require.NoError(t, err)

	h := webhook.NormalizeHeaders(got.headers)
	ok := providers.Discord().Verify(got.body, h, hex.EncodeToString(pub))
	assert.True(t, ok, "discord verifier accepts the synthetic ed25519 signature")
}

func TestExecute_GenericProviderSignature(t *testing.T) {
	srv, got := target(t)

	e := NewExecutor(nil)
	_, err := e.Execute(context.Background(), ExecuteOptions{
		URL:      srv.URL,
		Provider: "acme",
		Secret:   "s3cret",
		Body:     `{"type":"ping"}`,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, got.headers.Get("X-Webhook-Signature"))

	h := webhook.NormalizeHeaders(got.headers)
	ok := providers.Generic("acme").Verify(got.body, h, "s3cret")
	assert.True(t, ok)
}
