package state

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/stripe-sync-client/pkg/stream"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestLoad_MissingKeyIsFirstSync(t *testing.T) {
	store := NewStore(setupTestRedis(t))

	st, err := store.Load(context.Background(), "charges")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(st) != 0 {
		t.Errorf("State = %v, want empty for first sync", st)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()

	want := stream.State{"created": 1650000000}
	if err := store.Save(ctx, "charges", want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Load(ctx, "charges")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got["created"] != 1650000000 {
		t.Errorf("State = %v, want %v", got, want)
	}
}

func TestSave_KeyNamespacedPerStream(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewStore(redisClient)
	ctx := context.Background()

	if err := store.Save(ctx, "charges", stream.State{"created": 1}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := store.Save(ctx, "invoices", stream.State{"created": 2}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if err := redisClient.Get(ctx, KeyPrefix+"charges").Err(); err != nil {
		t.Errorf("Expected key %q: %v", KeyPrefix+"charges", err)
	}

	charges, err := store.Load(ctx, "charges")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if charges["created"] != 1 {
		t.Errorf("charges cursor = %d, want 1", charges["created"])
	}
}

func TestLoad_CorruptEntry(t *testing.T) {
	redisClient := setupTestRedis(t)
	store := NewStore(redisClient)
	ctx := context.Background()

	if err := redisClient.Set(ctx, KeyPrefix+"charges", "not json", 0).Err(); err != nil {
		t.Fatalf("Failed to seed corrupt entry: %v", err)
	}

	if _, err := store.Load(ctx, "charges"); err == nil {
		t.Error("Expected error for corrupt state entry")
	}
}

func TestNewStore_NilRedisPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for nil redis client")
		}
	}()
	NewStore(nil)
}
