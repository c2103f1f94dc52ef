package stream

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPageLimit is the page size requested from the API. Stripe
// defaults to 10 and caps at 100.
const DefaultPageLimit = 100

// createdParam is the query parameter bounding incremental reads.
const createdParam = "created[gte]"

// startingAfterParam is the continuation field used by Stripe list
// endpoints and by overflow slices.
const startingAfterParam = "starting_after"

// Prometheus metrics for stream reads.
var (
	streamPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_stream_pages_total",
		Help: "Total pages fetched by stream",
	}, []string{"stream"})

	streamRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_stream_records_total",
		Help: "Total records emitted by stream",
	}, []string{"stream"})

	substreamOverflowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_substream_overflows_total",
		Help: "Total overflow paginations triggered by sub-stream",
	}, []string{"stream"})
)

// Filter keeps only embedded items whose attribute equals the given
// value. Used when a parent's embedded container mixes multiple
// sub-entity types (e.g. customer sources).
type Filter struct {
	Attr  string
	Value string
}

// Config declaratively describes one concrete stream. Most Stripe
// streams differ only in path and a few flags, so the catalog is a
// table of these rather than one type per entity.
type Config struct {
	// Name is the stream's logical name, also the key for persisted
	// cursor state.
	Name string

	// Path is the list endpoint path relative to the API base.
	// PathFunc takes precedence when set and builds the path from the
	// current slice (e.g. "invoices/{id}/lines").
	Path     string
	PathFunc func(Slice) string

	// CursorField marks the stream incremental. It names the record
	// attribute that increases monotonically in the source (a creation
	// timestamp). Empty means full refresh.
	CursorField string

	// ExtraParams are entity-specific query parameters added to every
	// request (status filters, expansion flags).
	ExtraParams url.Values

	// SliceParams derives additional query parameters from the current
	// slice (e.g. subscription=<parent id>).
	SliceParams func(Slice) url.Values

	// Parent, when set, sources this stream's records from another
	// stream's output instead of independent top-level requests.
	Parent *Config

	// ParentID is the field name correlating child records back to the
	// parent, and the slice key carrying the parent's id.
	ParentID string

	// SubItemsAttr names the nested container field inside each parent
	// record holding "data", "has_more" and the pagination cursor.
	// When set, records are extracted from the parent's embedded
	// collection (sub-stream mode). When empty but Parent is set, one
	// direct paginated request is issued per parent record.
	SubItemsAttr string

	// Filter, when set, restricts extracted embedded items.
	Filter *Filter

	// AddParentID injects the parent's id into each emitted record
	// under ParentID unless already present.
	AddParentID bool

	// TolerateStatuses lists HTTP statuses treated as "no data" rather
	// than errors (404 on checkout session line items).
	TolerateStatuses []int

	// PageLimit overrides DefaultPageLimit.
	PageLimit int
}

// Options carries connector-level configuration shared by all streams.
type Options struct {
	// StartDate is the lower bound for the first sync, epoch seconds.
	StartDate int64

	// LookbackWindowDays is subtracted from the resume point of
	// incremental reads to re-fetch recently backdated records.
	LookbackWindowDays int
}

// Stream produces a lazy sequence of records for one logical entity.
type Stream struct {
	cfg     Config
	fetcher PageFetcher
	opts    Options
	parent  *Stream
	logger  zerolog.Logger
}

// New validates cfg and builds a Stream, including its parent chain.
// Configuration errors are reported here, not at read time.
func New(cfg Config, fetcher PageFetcher, opts Options) (*Stream, error) {
	if fetcher == nil {
		return nil, configErr(cfg.Name, "fetcher is required")
	}
	if opts.LookbackWindowDays < 0 {
		return nil, configErr(cfg.Name, "lookback window must be >= 0 (got %d)", opts.LookbackWindowDays)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Stream{
		cfg:     cfg,
		fetcher: fetcher,
		opts:    opts,
		logger:  log.With().Str("component", "stream").Str("stream", cfg.Name).Logger(),
	}

	if cfg.Parent != nil {
		parent, err := New(*cfg.Parent, fetcher, opts)
		if err != nil {
			return nil, fmt.Errorf("stream %q: parent: %w", cfg.Name, err)
		}
		s.parent = parent
	}

	return s, nil
}

// Validate checks the configuration for missing or contradictory
// fields. Called by New; exported so the catalog can be verified
// without a fetcher.
func (c Config) Validate() error {
	if c.Name == "" {
		return configErr(c.Name, "name is required")
	}
	if c.Path == "" && c.PathFunc == nil {
		return configErr(c.Name, "path or path func is required")
	}
	if c.PageLimit < 0 || c.PageLimit > DefaultPageLimit {
		return configErr(c.Name, "page limit must be in [0, %d] (got %d)", DefaultPageLimit, c.PageLimit)
	}
	if c.SubItemsAttr != "" {
		if c.Parent == nil {
			return configErr(c.Name, "sub_items_attr requires a parent stream")
		}
		if c.ParentID == "" {
			return configErr(c.Name, "sub_items_attr requires parent_id")
		}
	}
	if c.Parent != nil && c.ParentID == "" {
		return configErr(c.Name, "parent requires parent_id")
	}
	if c.Filter != nil {
		if c.SubItemsAttr == "" {
			return configErr(c.Name, "filter only applies to embedded sub-stream items")
		}
		if c.Filter.Attr == "" {
			return configErr(c.Name, "filter attr is required")
		}
	}
	if c.AddParentID && c.Parent == nil {
		return configErr(c.Name, "add_parent_id requires a parent stream")
	}
	return nil
}

// Name returns the stream's logical name.
func (s *Stream) Name() string { return s.cfg.Name }

// Config returns the stream's configuration.
func (s *Stream) Config() Config { return s.cfg }

// Read returns a lazy record iterator for the given slice. Each call
// starts pagination fresh. state bounds incremental requests and is
// never mutated; the caller folds UpdateState over emitted records.
func (s *Stream) Read(ctx context.Context, slice Slice, state State) *Records {
	var seq iter.Seq2[Record, error]
	switch {
	case s.cfg.SubItemsAttr != "":
		seq = s.subStreamRecords(ctx, state)
	case s.parent != nil:
		seq = s.perParentRecords(ctx, state)
	default:
		seq = s.pageRecords(ctx, slice, state)
	}

	next, stop := iter.Pull2(seq)
	return &Records{next: next, stop: stop}
}

// pageRecords paginates the stream's own list endpoint for one slice:
// fresh token, one page per fetch, stop when the fetcher returns no
// continuation token.
func (s *Stream) pageRecords(ctx context.Context, slice Slice, state State) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var token PageToken
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			path := s.path(slice)
			query := s.buildQuery(slice, state, token)
			records, next, err := s.fetcher.FetchPage(ctx, path, query, s.cfg.TolerateStatuses)
			if err != nil {
				yield(nil, fmt.Errorf("stream %q: read %s: %w", s.cfg.Name, path, err))
				return
			}

			streamPagesTotal.WithLabelValues(s.cfg.Name).Inc()
			s.logger.Debug().
				Str("path", path).
				Int("records", len(records)).
				Bool("has_more", next != nil).
				Msg("Page fetched")

			for _, rec := range records {
				s.decorate(rec, slice)
				streamRecordsTotal.WithLabelValues(s.cfg.Name).Inc()
				if !yield(rec, nil) {
					return
				}
			}

			if next == nil {
				return
			}
			token = next
		}
	}
}

// path resolves the endpoint path for the current slice.
func (s *Stream) path(slice Slice) string {
	if s.cfg.PathFunc != nil {
		return s.cfg.PathFunc(slice)
	}
	return s.cfg.Path
}

// buildQuery assembles request parameters: page limit, continuation
// token merged verbatim, the slice's starting_after when the token has
// none, the incremental created bound, and entity-specific extras.
func (s *Stream) buildQuery(slice Slice, state State, token PageToken) url.Values {
	query := url.Values{}

	limit := s.cfg.PageLimit
	if limit == 0 {
		limit = DefaultPageLimit
	}
	query.Set("limit", strconv.Itoa(limit))

	for key, value := range token {
		query.Set(key, value)
	}
	if query.Get(startingAfterParam) == "" && slice[startingAfterParam] != "" {
		query.Set(startingAfterParam, slice[startingAfterParam])
	}

	if s.cfg.CursorField != "" {
		if start := s.effectiveStart(state); start > 0 {
			query.Set(createdParam, strconv.FormatInt(start, 10))
		}
	}

	for key, values := range s.cfg.ExtraParams {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	if s.cfg.SliceParams != nil {
		for key, values := range s.cfg.SliceParams(slice) {
			for _, value := range values {
				query.Set(key, value)
			}
		}
	}

	return query
}

// decorate injects the parent id into records fetched per parent
// record (sub-stream embedded items are decorated in substream.go).
func (s *Stream) decorate(rec Record, slice Slice) {
	if !s.cfg.AddParentID || s.cfg.SubItemsAttr != "" {
		return
	}
	if id := slice[s.cfg.ParentID]; id != "" {
		if _, ok := rec[s.cfg.ParentID]; !ok {
			rec[s.cfg.ParentID] = id
		}
	}
}

// Records is a pull-based record iterator in the style of sql.Rows.
// The consumer may stop at any point; abandoning iteration halts
// further HTTP calls at the next page boundary.
type Records struct {
	next func() (Record, error, bool)
	stop func()
	cur  Record
	err  error
	done bool
}

// Next advances to the next record. It returns false when the stream
// is exhausted or an error occurred; check Err afterwards.
func (r *Records) Next() bool {
	if r.done {
		return false
	}
	rec, err, ok := r.next()
	if !ok {
		r.finish()
		return false
	}
	if err != nil {
		r.err = err
		r.finish()
		return false
	}
	r.cur = rec
	return true
}

// Record returns the current record. Only valid after Next reported
// true.
func (r *Records) Record() Record { return r.cur }

// Err returns the first error encountered during iteration, if any.
func (r *Records) Err() error { return r.err }

// Close releases the iterator early. Safe to call multiple times and
// after exhaustion.
func (r *Records) Close() { r.finish() }

func (r *Records) finish() {
	if !r.done {
		r.done = true
		r.stop()
	}
}
