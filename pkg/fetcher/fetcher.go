// Package fetcher provides the paginated-HTTP-fetch primitive for the
// Stripe API: one page per call, with retry, error classification, and
// continuation-token decoding.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/stripe-sync-client/pkg/stream"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_requests_total",
		Help: "Total Stripe requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_request_duration_seconds",
		Help:    "Stripe request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_errors_total",
		Help: "Total Stripe errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the Stripe API v1 base.
const DefaultBaseURL = "https://api.stripe.com/v1/"

// Config holds the fetcher configuration.
type Config struct {
	// APIKey is the Stripe secret key (REQUIRED).
	APIKey string

	// AccountID, when set, scopes every request to a connected
	// sub-account via the Stripe-Account header.
	AccountID string

	// BaseURL overrides DefaultBaseURL (tests).
	BaseURL string

	// UserAgent identifies the client.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:    apiKey,
		BaseURL:   DefaultBaseURL,
		UserAgent: "stripe-sync-client/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// Client fetches single pages from Stripe list endpoints. It
// implements stream.PageFetcher.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// listEnvelope is the Stripe list response shape.
type listEnvelope struct {
	Data    []stream.Record `json:"data"`
	HasMore bool            `json:"has_more"`
}

// New creates a new fetcher client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "fetcher").Logger(),
	}, nil
}

// FetchPage performs one GET against a list endpoint and decodes the
// page. The continuation token is derived from the envelope: when
// has_more is set, the next request continues after the last record's
// id. Statuses listed in tolerate yield an empty page with no error;
// other non-2xx statuses fail (4xx immediately, 5xx/429/network after
// retries).
func (c *Client) FetchPage(ctx context.Context, path string, query url.Values, tolerate []int) ([]stream.Record, stream.PageToken, error) {
	endpoint := "/" + strings.TrimPrefix(path, "/")

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	requestURL := c.config.BaseURL + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var body []byte
	var status int

	err := retryWithBackoff(ctx, func() (ErrorClass, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return ErrorClassNetwork, err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", status)).Inc()

		if status >= 400 {
			class := classifyStatus(status)
			errorsTotal.WithLabelValues(string(class)).Inc()

			if tolerated(status, tolerate) {
				// Declared "no data" case; drain so the body is logged
				// once and the page comes back empty.
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				c.logger.Warn().
					Str("endpoint", endpoint).
					Int("status", status).
					Str("body", string(msg)).
					Msg("Tolerated error status, returning empty page")
				body = nil
				return "", nil
			}

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", status).
				Str("error_class", string(class)).
				Msg("Stripe request error")
			return class, &APIError{
				StatusCode: status,
				ErrorClass: class,
				Message:    resp.Status,
			}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return ErrorClassNetwork, fmt.Errorf("read response: %w", err)
		}
		return "", nil
	})
	if err != nil {
		return nil, nil, err
	}

	if body == nil {
		return nil, nil, nil
	}

	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}

	return envelope.Data, nextToken(envelope), nil
}

// nextToken derives the continuation token from a decoded page.
func nextToken(envelope listEnvelope) stream.PageToken {
	if !envelope.HasMore || len(envelope.Data) == 0 {
		return nil
	}
	last := envelope.Data[len(envelope.Data)-1]
	id, ok := last["id"].(string)
	if !ok || id == "" {
		return nil
	}
	return stream.PageToken{"starting_after": id}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.AccountID != "" {
		req.Header.Set("Stripe-Account", c.config.AccountID)
	}
}

// classifyStatus categorizes an HTTP status for retry and metrics.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

func tolerated(status int, tolerate []int) bool {
	for _, t := range tolerate {
		if status == t {
			return true
		}
	}
	return false
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
