package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/stripe-sync-client/pkg/fetcher"
	"github.com/Sternrassler/stripe-sync-client/pkg/logging"
	"github.com/Sternrassler/stripe-sync-client/pkg/state"
	"github.com/Sternrassler/stripe-sync-client/pkg/stream"
	"github.com/Sternrassler/stripe-sync-client/pkg/syncer"
)

func main() {
	// Configuration from environment
	apiKey := os.Getenv("STRIPE_API_KEY")
	if apiKey == "" {
		log.Fatal("STRIPE_API_KEY is required")
	}
	accountID := getEnv("STRIPE_ACCOUNT_ID", "")
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	startDate := getEnvInt64("START_DATE", 0)
	lookbackDays := int(getEnvInt64("LOOKBACK_WINDOW_DAYS", 0))

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") != "",
		Output: os.Stderr,
	})

	// Setup Redis for cursor state
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Printf("Connected to Redis at %s", redisURL)

	cfg := fetcher.DefaultConfig(apiKey)
	cfg.AccountID = accountID
	pageFetcher, err := fetcher.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create fetcher: %v", err)
	}

	s, err := syncer.New(
		pageFetcher,
		state.NewStore(redisClient),
		newJSONWriter(os.Stdout),
		stream.Options{StartDate: startDate, LookbackWindowDays: lookbackDays},
	)
	if err != nil {
		log.Fatalf("Failed to create syncer: %v", err)
	}

	streams, err := selectStreams(getEnv("STREAMS", ""))
	if err != nil {
		log.Fatalf("Failed to select streams: %v", err)
	}

	total, err := s.SyncAll(ctx, streams)
	if err != nil {
		log.Fatalf("Sync finished with errors after %d records: %v", total, err)
	}
	log.Printf("Sync complete: %d records across %d streams", total, len(streams))
}

// selectStreams resolves the STREAMS env value (comma-separated names)
// against the catalog; empty means every stream.
func selectStreams(names string) ([]stream.Config, error) {
	if names == "" {
		return stream.Catalog(), nil
	}

	var cfgs []stream.Config
	for _, name := range strings.Split(names, ",") {
		cfg, err := stream.Lookup(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

// jsonWriter emits one JSON line per record on stdout.
type jsonWriter struct {
	enc *json.Encoder
}

func newJSONWriter(w *os.File) *jsonWriter {
	return &jsonWriter{enc: json.NewEncoder(w)}
}

type recordLine struct {
	Stream string        `json:"stream"`
	Data   stream.Record `json:"data"`
}

func (w *jsonWriter) Write(streamName string, rec stream.Record) error {
	return w.enc.Encode(recordLine{Stream: streamName, Data: rec})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return n
}
