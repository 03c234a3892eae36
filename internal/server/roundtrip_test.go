package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-webhook/better-webhook/internal/capture"
	"github.com/better-webhook/better-webhook/internal/dispatch"
	"github.com/better-webhook/better-webhook/sdk/signature"
	"github.com/better-webhook/better-webhook/sdk/webhook"
	"github.com/better-webhook/better-webhook/sdk/webhook/providers"
)

// A signed webhook captured by the server must still verify when replayed
// to a downstream target: the raw body and signature headers survive the
// round trip bit-exact.
func TestCaptureThenReplay_SignatureSurvives(t *testing.T) {
	const secret = "replay-secret"
	body := `{"action":"opened","number":7}`

	scheme := signature.Scheme{
		Algorithm: signature.SHA256,
		Encoding:  signature.Hex,
		Prefix:    "sha256=",
		Base:      signature.BaseBody,
	}
	sig, err := scheme.Sign([]byte(secret), signature.BaseInput{Body: []byte(body)})
	require.NoError(t, err)

	store, err := capture.NewStore(t.TempDir())
	require.NoError(t, err)
	_, ts := newTestServer(t, Options{Store: store})

	resp := postJSON(t, ts.URL+"/webhooks/github", body, map[string]string{
		"X-GitHub-Event":       "pull_request",
		"X-GitHub-Delivery":    "d-roundtrip",
		"X-Hub-Signature-256":  sig,
		"X-Forwarded-By-Proxy": "edge-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	captureID := resp.Header.Get("X-Capture-Id")
	require.NotEmpty(t, captureID)

	var forwarded struct {
		body    []byte
		headers http.Header
	}
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		forwarded.body = data
		forwarded.headers = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	r := dispatch.NewReplayer(store, nil)
	res, err := r.Replay(context.Background(), captureID, dispatch.ReplayOptions{
		TargetURL: target.URL,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.Status)

	assert.Equal(t, body, string(forwarded.body), "raw body replayed verbatim")
	assert.Equal(t, "edge-1", forwarded.headers.Get("X-Forwarded-By-Proxy"))

	h := webhook.NormalizeHeaders(forwarded.headers)
	ok := providers.GitHub().Verify(forwarded.body, h, secret)
	assert.True(t, ok, "signature verifies after the round trip")
}
