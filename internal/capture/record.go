// Package capture defines the on-disk representation of intercepted webhook
// requests and the filesystem store that persists them. One JSON file per
// capture; filenames sort reverse-chronologically.
package capture

import (
	"time"
)

// timestampLayout is ISO-8601 UTC with millisecond precision, the stable
// wire format of CaptureRecord.timestamp.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Record is one intercepted request. Headers keep their original wire
// casing; RawBody is the verbatim UTF-8 body and Body its parsed form when
// the content type allowed parsing.
type Record struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`

	Method string `json:"method"`
	URL    string `json:"url"`
	Path   string `json:"path"`

	Headers map[string]string   `json:"headers"`
	Query   map[string][]string `json:"query"`

	Body    any    `json:"body"`
	RawBody string `json:"rawBody"`

	Provider      string `json:"provider,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	ContentLength int64  `json:"contentLength"`
}

// File pairs a record with its on-disk filename, the unit returned by
// list/get/search.
type File struct {
	File    string `json:"file"`
	Capture Record `json:"capture"`
}

// FormatTimestamp renders t in the capture timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// Time returns the record's timestamp, or the zero time when unparseable.
func (r Record) Time() time.Time {
	t, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
