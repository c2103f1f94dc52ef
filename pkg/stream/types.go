package stream

import (
	"context"
	"encoding/json"
	"net/url"
)

// Record is one emitted item: an arbitrarily nested key/value mapping
// as decoded from the API's JSON response.
type Record = map[string]any

// Slice identifies one partition of a stream's domain, e.g.
// {"customer_id": "cus_123"} or {"invoice_id": "in_1", "starting_after": "il_9"}.
// Streams without partitioning use a nil slice.
type Slice = map[string]string

// PageToken is an opaque continuation marker. A nil token signals
// end-of-stream. Token fields are merged verbatim into the next
// request's query parameters.
type PageToken = map[string]string

// State maps a cursor field name to the maximum cursor value observed,
// in epoch seconds. Persisted between syncs per stream.
type State = map[string]int64

// PageFetcher performs one HTTP call against a list endpoint and
// returns the decoded page plus a continuation token (nil when
// exhausted). Statuses listed in tolerate yield an empty page instead
// of an error. Retry, if any, belongs to the fetcher implementation.
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, query url.Values, tolerate []int) ([]Record, PageToken, error)
}

// cursorValue extracts an integer cursor from a decoded record field.
// JSON numbers arrive as float64; json.Number shows up when callers
// decode with UseNumber.
func cursorValue(rec Record, field string) (int64, bool) {
	switch v := rec[field].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// recordID returns the record's primary key.
func recordID(rec Record) (string, bool) {
	id, ok := rec["id"].(string)
	return id, ok && id != ""
}
