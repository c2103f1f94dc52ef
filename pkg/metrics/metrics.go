// Package metrics provides the centralized Prometheus metrics registry
// for the sync client. All metrics are defined in their respective
// packages (fetcher, stream, syncer) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the sync client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/fetcher):
//   - stripe_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - stripe_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - stripe_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/fetcher):
//   - stripe_retries_total{error_class} (Counter): Retry attempts by error class
//   - stripe_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - stripe_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Stream Metrics (pkg/stream):
//   - stripe_stream_pages_total{stream} (Counter): Pages fetched by stream
//   - stripe_stream_records_total{stream} (Counter): Records emitted by stream
//   - stripe_substream_overflows_total{stream} (Counter): Overflow paginations by sub-stream
//
// Sync Metrics (pkg/syncer):
//   - stripe_sync_records_total{stream} (Counter): Records emitted per sync by stream
//   - stripe_sync_duration_seconds{stream} (Histogram): Full stream sync duration
//   - stripe_sync_failures_total{stream} (Counter): Failed stream syncs
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(stripe_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(stripe_request_duration_seconds_bucket[5m]))
//
//   # Overflow Rate (sub-stream reads that spilled past the embedded page)
//   rate(stripe_substream_overflows_total[1h]) / rate(stripe_stream_pages_total[1h])
//
//   # Records Per Sync
//   increase(stripe_sync_records_total[1h])
