package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(t *testing.T, at time.Time, path string) Record {
	t.Helper()
	return Record{
		ID:            uuid.NewString(),
		Timestamp:     FormatTimestamp(at),
		Method:        "POST",
		URL:           "http://localhost:3000" + path,
		Path:          path,
		Headers:       map[string]string{"Content-Type": "application/json", "X-Demo": "1"},
		Query:         map[string][]string{"v": {"1", "2"}},
		Body:          map[string]any{"hello": "world"},
		RawBody:       `{"hello":"world"}`,
		Provider:      "github",
		ContentType:   "application/json",
		ContentLength: 17,
	}
}

func TestSaveAndReadBack_RoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	rec := newRecord(t, time.Now(), "/webhooks/x")
	saved, err := store.Save(rec)
	require.NoError(t, err)
	assert.Contains(t, saved.File, rec.ID[:8])

	got, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.RawBody, got.Capture.RawBody, "raw body must round-trip byte-equal")
	assert.Equal(t, rec.Headers, got.Capture.Headers, "header casing must be preserved")
	assert.Equal(t, rec.Query, got.Capture.Query)
	assert.Equal(t, rec.Timestamp, got.Capture.Timestamp)
	assert.Equal(t, map[string]any{"hello": "world"}, got.Capture.Body)
}

func TestList_NewestFirst(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		rec := newRecord(t, base.Add(time.Duration(i)*time.Minute), "/hook")
		_, err := store.Save(rec)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	files, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, ids[2], files[0].Capture.ID, "newest capture listed first")
	assert.Equal(t, ids[0], files[2].Capture.ID)

	limited, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGet_PartialMatches(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	rec := newRecord(t, time.Now(), "/hook")
	_, err = store.Save(rec)
	require.NoError(t, err)

	byExact, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byExact.Capture.ID)

	byPrefix, err := store.Get(rec.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byPrefix.Capture.ID)

	_, err = store.Get("no-such-capture")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearch_CaseInsensitiveFields(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	github := newRecord(t, time.Now(), "/webhooks/github")
	github.Provider = "github"
	stripe := newRecord(t, time.Now().Add(time.Second), "/webhooks/stripe")
	stripe.Provider = "stripe"
	for _, rec := range []Record{github, stripe} {
		_, err := store.Save(rec)
		require.NoError(t, err)
	}

	byProvider, err := store.Search("STRIPE")
	require.NoError(t, err)
	require.Len(t, byProvider, 1)
	assert.Equal(t, stripe.ID, byProvider[0].Capture.ID)

	byPath, err := store.Search("/webhooks/")
	require.NoError(t, err)
	assert.Len(t, byPath, 2)

	byMethod, err := store.Search("post")
	require.NoError(t, err)
	assert.Len(t, byMethod, 2)

	none, err := store.Search("zzz-nothing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteAndDeleteAll(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	first := newRecord(t, time.Now(), "/a")
	second := newRecord(t, time.Now().Add(time.Second), "/b")
	for _, rec := range []Record{first, second} {
		_, err := store.Save(rec)
		require.NoError(t, err)
	}

	require.NoError(t, store.Delete(first.ID))
	_, err = store.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Non-capture files survive DeleteAll.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	deleted, err := store.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	files, err := store.List(0)
	require.NoError(t, err)
	assert.Empty(t, files)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestTimestampFormat(t *testing.T) {
	at := time.Date(2026, 8, 24, 12, 30, 45, 123_000_000, time.UTC)
	s := FormatTimestamp(at)
	assert.Equal(t, "2026-08-24T12:30:45.123Z", s)

	parsed, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(at))
}
