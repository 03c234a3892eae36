package webhook

import (
	"net/http"
	"strings"
)

// Headers is the normalized header view the pipeline presents to providers,
// observers, and handlers: lowercase keys, multi-valued headers collapsed to
// their first element.
type Headers map[string]string

// Get looks a header up by name, case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Has reports whether the header is present, case-insensitively.
func (h Headers) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

// NormalizeHeaders lower-cases every key of an http.Header and keeps the
// first value of each. Normalizing an already-normalized map is a no-op.
func NormalizeHeaders(src http.Header) Headers {
	out := make(Headers, len(src))
	for key, values := range src {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(key)] = values[0]
	}
	return out
}

// NormalizeHeaderMap is NormalizeHeaders for single-valued maps, used by
// adapters whose framework already collapsed multi-values.
func NormalizeHeaderMap(src map[string]string) Headers {
	out := make(Headers, len(src))
	for key, value := range src {
		out[strings.ToLower(key)] = value
	}
	return out
}
