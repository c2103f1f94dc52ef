// Package syncer drives full stream reads and owns the checkpoint
// boundary: cursor state is loaded at sync start, folded in memory
// while records flow, and persisted exactly once after the read for a
// stream completes. Stripe lists are most-recent-first, so persisting
// earlier would let a later resume skip older records that were never
// fetched.
package syncer

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stripe-sync-client/pkg/stream"
)

// Prometheus metrics for sync runs.
var (
	syncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_sync_records_total",
		Help: "Total records emitted per sync by stream",
	}, []string{"stream"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_sync_duration_seconds",
		Help:    "Full stream sync duration in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900},
	}, []string{"stream"})

	syncFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_sync_failures_total",
		Help: "Total failed stream syncs",
	}, []string{"stream"})
)

// StateStore persists cursor state between runs. Implemented by
// pkg/state with a Redis backend.
type StateStore interface {
	Load(ctx context.Context, streamName string) (stream.State, error)
	Save(ctx context.Context, streamName string, st stream.State) error
}

// RecordWriter receives every emitted record. Implementations decide
// the destination (stdout JSON lines, a warehouse loader, a test
// sink).
type RecordWriter interface {
	Write(streamName string, rec stream.Record) error
}

// Syncer runs streams end to end against a fetcher and a state store.
type Syncer struct {
	fetcher stream.PageFetcher
	store   StateStore
	writer  RecordWriter
	opts    stream.Options
	logger  zerolog.Logger
}

// New creates a Syncer. All collaborators are required.
func New(f stream.PageFetcher, store StateStore, writer RecordWriter, opts stream.Options) (*Syncer, error) {
	if f == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("record writer is required")
	}
	return &Syncer{
		fetcher: f,
		store:   store,
		writer:  writer,
		opts:    opts,
		logger:  log.With().Str("component", "syncer").Logger(),
	}, nil
}

// SyncStream reads one stream to exhaustion and returns the record
// count. For incremental streams the updated cursor is persisted only
// after the read completed without error; a failed or interrupted read
// leaves the prior state untouched.
func (s *Syncer) SyncStream(ctx context.Context, cfg stream.Config) (int, error) {
	startTime := time.Now()
	defer func() {
		syncDuration.WithLabelValues(cfg.Name).Observe(time.Since(startTime).Seconds())
	}()

	count, err := s.syncStream(ctx, cfg)
	if err != nil {
		syncFailuresTotal.WithLabelValues(cfg.Name).Inc()
		return count, err
	}

	s.logger.Info().
		Str("stream", cfg.Name).
		Int("records", count).
		Dur("duration", time.Since(startTime)).
		Msg("Stream sync complete")
	return count, nil
}

func (s *Syncer) syncStream(ctx context.Context, cfg stream.Config) (int, error) {
	strm, err := stream.New(cfg, s.fetcher, s.opts)
	if err != nil {
		return 0, err
	}

	prior, err := s.store.Load(ctx, cfg.Name)
	if err != nil {
		return 0, fmt.Errorf("load state for %q: %w", cfg.Name, err)
	}

	next := maps.Clone(prior)
	if next == nil {
		next = stream.State{}
	}

	count := 0
	rows := strm.Read(ctx, nil, prior)
	defer rows.Close()

	for rows.Next() {
		rec := rows.Record()
		if err := s.writer.Write(cfg.Name, rec); err != nil {
			return count, fmt.Errorf("write record from %q: %w", cfg.Name, err)
		}
		if strm.Incremental() {
			next = strm.UpdateState(next, rec)
		}
		count++
		syncRecordsTotal.WithLabelValues(cfg.Name).Inc()
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	// Checkpoint boundary: the read is complete for every slice, the
	// folded cursor is now safe to persist.
	if strm.Incremental() {
		if err := s.store.Save(ctx, cfg.Name, next); err != nil {
			return count, fmt.Errorf("save state for %q: %w", cfg.Name, err)
		}
	}

	return count, nil
}

// SyncAll runs every stream in cfgs sequentially, continuing past
// individual stream failures. It returns the total record count and
// the first error encountered, if any.
func (s *Syncer) SyncAll(ctx context.Context, cfgs []stream.Config) (int, error) {
	total := 0
	var firstErr error

	for _, cfg := range cfgs {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}

		count, err := s.SyncStream(ctx, cfg)
		total += count
		if err != nil {
			s.logger.Error().Err(err).Str("stream", cfg.Name).Msg("Stream sync failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return total, firstErr
}
