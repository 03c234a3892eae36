package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-webhook/better-webhook/internal/capture"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.Store == nil {
		store, err := capture.NewStore(t.TempDir())
		require.NoError(t, err)
		opts.Store = store
	}
	s, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCapture_PersistsAndResponds(t *testing.T) {
	s, ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+"/webhooks/github?tag=a&tag=b", `{"action":"opened"}`, map[string]string{
		"X-GitHub-Event":    "pull_request",
		"X-GitHub-Delivery": "d-123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, id, resp.Header.Get("X-Capture-Id"))
	assert.NotEmpty(t, body["file"])
	assert.NotEmpty(t, body["timestamp"])

	f, err := s.store.Get(id)
	require.NoError(t, err)
	rec := f.Capture
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, "/webhooks/github", rec.Path)
	assert.Equal(t, "github", rec.Provider)
	assert.Equal(t, `{"action":"opened"}`, rec.RawBody)
	assert.Equal(t, map[string]any{"action": "opened"}, rec.Body)
	assert.Equal(t, []string{"a", "b"}, rec.Query["tag"])
	assert.Equal(t, "pull_request", rec.Headers["X-Github-Event"], "wire casing preserved")
}

func TestCapture_UnknownProviderAndTextBody(t *testing.T) {
	s, ts := newTestServer(t, Options{})

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/anything", strings.NewReader("plain text"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f, err := s.store.Get(resp.Header.Get("X-Capture-Id"))
	require.NoError(t, err)
	assert.Equal(t, "unknown", f.Capture.Provider)
	assert.Equal(t, "plain text", f.Capture.Body)
	assert.Equal(t, "PUT", f.Capture.Method)
}

func TestCapture_FormBody(t *testing.T) {
	s, ts := newTestServer(t, Options{})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/twilio", strings.NewReader("From=%2B15551234&Body=hi"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "sig")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f, err := s.store.Get(resp.Header.Get("X-Capture-Id"))
	require.NoError(t, err)
	assert.Equal(t, "twilio", f.Capture.Provider)
	assert.Equal(t, map[string]any{"From": "+15551234", "Body": "hi"}, f.Capture.Body)
}

func TestCapture_BodyTooLarge(t *testing.T) {
	_, ts := newTestServer(t, Options{MaxBodyBytes: 16})

	resp := postJSON(t, ts.URL+"/hook", strings.Repeat("x", 17), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Payload too large", body["message"])

	ok := postJSON(t, ts.URL+"/hook", strings.Repeat("x", 16), nil)
	assert.Equal(t, http.StatusOK, ok.StatusCode, "exactly the cap is accepted")
}

func TestSubscribers_NotifiedAndPanicSwallowed(t *testing.T) {
	s, ts := newTestServer(t, Options{})

	got := make(chan capture.File, 1)
	s.Subscribe(func(capture.File) { panic("bad subscriber") })
	s.Subscribe(func(f capture.File) { got <- f })

	resp := postJSON(t, ts.URL+"/hook", `{"a":1}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case f := <-got:
		assert.Equal(t, resp.Header.Get("X-Capture-Id"), f.Capture.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not notified")
	}
}

func TestDashboardEndpoints(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	first := postJSON(t, ts.URL+"/a", `{"n":1}`, nil)
	id := first.Header.Get("X-Capture-Id")
	require.NotEmpty(t, id)

	resp, err := http.Get(ts.URL + "/_dashboard/captures")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode(t, resp)
	captures, _ := list["captures"].([]any)
	assert.Len(t, captures, 1)

	one, err := http.Get(ts.URL + "/_dashboard/captures/" + id[:8])
	require.NoError(t, err)
	defer func() { _ = one.Body.Close() }()
	assert.Equal(t, http.StatusOK, one.StatusCode)

	del, err := http.NewRequest(http.MethodDelete, ts.URL+"/_dashboard/captures/"+id, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	defer func() { _ = delResp.Body.Close() }()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	missing, err := http.Get(ts.URL + "/_dashboard/captures/" + id)
	require.NoError(t, err)
	defer func() { _ = missing.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestStartAndShutdown_EphemeralPort(t *testing.T) {
	store, err := capture.NewStore(t.TempDir())
	require.NoError(t, err)
	s, err := New(Options{Host: "127.0.0.1", Port: 0, Store: store})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && s.Addr() == "" {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, s.Addr(), "ephemeral port resolved after Start")

	resp, err := http.Post("http://"+s.Addr()+"/hook", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-done)
}
