package syncer

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/Sternrassler/stripe-sync-client/pkg/stream"
)

// fakeFetcher serves canned pages per path.
type fakeFetcher struct {
	handler func(path string, query url.Values) ([]stream.Record, stream.PageToken, error)
}

func (f *fakeFetcher) FetchPage(_ context.Context, path string, query url.Values, _ []int) ([]stream.Record, stream.PageToken, error) {
	return f.handler(path, query)
}

// memoryStore is an in-memory StateStore.
type memoryStore struct {
	states map[string]stream.State
	saves  int
	failOn string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[string]stream.State)}
}

func (m *memoryStore) Load(_ context.Context, streamName string) (stream.State, error) {
	if st, ok := m.states[streamName]; ok {
		return st, nil
	}
	return stream.State{}, nil
}

func (m *memoryStore) Save(_ context.Context, streamName string, st stream.State) error {
	if streamName == m.failOn {
		return errors.New("store unavailable")
	}
	m.saves++
	m.states[streamName] = st
	return nil
}

// sink collects written records.
type sink struct {
	records map[string][]stream.Record
	failOn  string
}

func newSink() *sink {
	return &sink{records: make(map[string][]stream.Record)}
}

func (s *sink) Write(streamName string, rec stream.Record) error {
	if streamName == s.failOn {
		return errors.New("sink full")
	}
	s.records[streamName] = append(s.records[streamName], rec)
	return nil
}

func chargesCfg() stream.Config {
	return stream.Config{Name: "charges", Path: "charges", CursorField: "created"}
}

func newSyncer(t *testing.T, f stream.PageFetcher, store StateStore, writer RecordWriter) *Syncer {
	t.Helper()
	s, err := New(f, store, writer, stream.Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	f := &fakeFetcher{}
	store := newMemoryStore()
	writer := newSink()

	if _, err := New(nil, store, writer, stream.Options{}); err == nil {
		t.Error("Expected error for nil fetcher")
	}
	if _, err := New(f, nil, writer, stream.Options{}); err == nil {
		t.Error("Expected error for nil store")
	}
	if _, err := New(f, store, nil, stream.Options{}); err == nil {
		t.Error("Expected error for nil writer")
	}
	if _, err := New(f, store, writer, stream.Options{}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSyncStream_PersistsStateAtEnd(t *testing.T) {
	// Most-recent-first ordering across two pages.
	fetcher := &fakeFetcher{handler: func(path string, query url.Values) ([]stream.Record, stream.PageToken, error) {
		if query.Get("starting_after") == "" {
			return []stream.Record{
				{"id": "ch_3", "created": float64(3000)},
				{"id": "ch_2", "created": float64(2000)},
			}, stream.PageToken{"starting_after": "ch_2"}, nil
		}
		return []stream.Record{{"id": "ch_1", "created": float64(1000)}}, nil, nil
	}}

	store := newMemoryStore()
	writer := newSink()
	s := newSyncer(t, fetcher, store, writer)

	count, err := s.SyncStream(context.Background(), chargesCfg())
	if err != nil {
		t.Fatalf("SyncStream() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
	if len(writer.records["charges"]) != 3 {
		t.Errorf("Written records = %d, want 3", len(writer.records["charges"]))
	}
	if store.saves != 1 {
		t.Errorf("Saves = %d, want exactly 1 (end-of-read checkpoint)", store.saves)
	}
	if got := store.states["charges"]["created"]; got != 3000 {
		t.Errorf("Persisted cursor = %d, want 3000", got)
	}
}

func TestSyncStream_FailureLeavesStateUntouched(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(path string, query url.Values) ([]stream.Record, stream.PageToken, error) {
		if query.Get("starting_after") == "" {
			return []stream.Record{{"id": "ch_3", "created": float64(3000)}},
				stream.PageToken{"starting_after": "ch_3"}, nil
		}
		return nil, nil, errors.New("api down")
	}}

	store := newMemoryStore()
	store.states["charges"] = stream.State{"created": 500}
	s := newSyncer(t, fetcher, store, newSink())

	count, err := s.SyncStream(context.Background(), chargesCfg())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1 record before failure", count)
	}
	// No mid-read checkpoint: the prior cursor survives.
	if store.saves != 0 {
		t.Errorf("Saves = %d, want 0 after failed read", store.saves)
	}
	if got := store.states["charges"]["created"]; got != 500 {
		t.Errorf("Cursor = %d, want untouched 500", got)
	}
}

func TestSyncStream_PriorStateBoundsRequest(t *testing.T) {
	var gotCreated string
	fetcher := &fakeFetcher{handler: func(path string, query url.Values) ([]stream.Record, stream.PageToken, error) {
		gotCreated = query.Get("created[gte]")
		return nil, nil, nil
	}}

	store := newMemoryStore()
	store.states["charges"] = stream.State{"created": 1650000000}
	s := newSyncer(t, fetcher, store, newSink())

	if _, err := s.SyncStream(context.Background(), chargesCfg()); err != nil {
		t.Fatalf("SyncStream() failed: %v", err)
	}
	if gotCreated != "1650000000" {
		t.Errorf("created[gte] = %q, want 1650000000", gotCreated)
	}
}

func TestSyncStream_EmptyReadKeepsPriorCursor(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(string, url.Values) ([]stream.Record, stream.PageToken, error) {
		return nil, nil, nil
	}}

	store := newMemoryStore()
	store.states["charges"] = stream.State{"created": 1650000000}
	s := newSyncer(t, fetcher, store, newSink())

	if _, err := s.SyncStream(context.Background(), chargesCfg()); err != nil {
		t.Fatalf("SyncStream() failed: %v", err)
	}
	if got := store.states["charges"]["created"]; got != 1650000000 {
		t.Errorf("Cursor = %d, want prior 1650000000 preserved", got)
	}
}

func TestSyncStream_FullRefreshSkipsStateSave(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(string, url.Values) ([]stream.Record, stream.PageToken, error) {
		return []stream.Record{{"id": "cs_1"}}, nil, nil
	}}

	store := newMemoryStore()
	s := newSyncer(t, fetcher, store, newSink())

	cfg := stream.Config{Name: "checkout_sessions", Path: "checkout/sessions"}
	if _, err := s.SyncStream(context.Background(), cfg); err != nil {
		t.Fatalf("SyncStream() failed: %v", err)
	}
	if store.saves != 0 {
		t.Errorf("Saves = %d, want 0 for full refresh stream", store.saves)
	}
}

func TestSyncStream_WriterErrorAborts(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(string, url.Values) ([]stream.Record, stream.PageToken, error) {
		return []stream.Record{{"id": "ch_1", "created": float64(1000)}}, nil, nil
	}}

	store := newMemoryStore()
	writer := newSink()
	writer.failOn = "charges"
	s := newSyncer(t, fetcher, store, writer)

	if _, err := s.SyncStream(context.Background(), chargesCfg()); err == nil {
		t.Fatal("Expected writer error, got nil")
	}
	if store.saves != 0 {
		t.Errorf("Saves = %d, want 0 after writer failure", store.saves)
	}
}

func TestSyncAll_ContinuesPastFailures(t *testing.T) {
	fetcher := &fakeFetcher{handler: func(path string, _ url.Values) ([]stream.Record, stream.PageToken, error) {
		if path == "coupons" {
			return nil, nil, errors.New("api down")
		}
		return []stream.Record{{"id": path + "_1", "created": float64(1000)}}, nil, nil
	}}

	store := newMemoryStore()
	writer := newSink()
	s := newSyncer(t, fetcher, store, writer)

	cfgs := []stream.Config{
		{Name: "charges", Path: "charges", CursorField: "created"},
		{Name: "coupons", Path: "coupons", CursorField: "created"},
		{Name: "payouts", Path: "payouts", CursorField: "created"},
	}

	total, err := s.SyncAll(context.Background(), cfgs)
	if err == nil {
		t.Fatal("Expected first error to be reported")
	}
	if total != 2 {
		t.Errorf("Total = %d, want 2 (failed stream skipped)", total)
	}
	if len(writer.records["payouts"]) != 1 {
		t.Error("Streams after the failure should still run")
	}
}
