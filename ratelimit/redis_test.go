package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func TestRedisStore_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: redisAddr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	prefix := fmt.Sprintf("cordial_test_%d:", time.Now().UnixNano())
	store, err := NewRedisStore(ctx, client, WithPrefix(prefix))
	if err != nil {
		t.Fatalf("Failed to create RedisStore: %v", err)
	}

	t.Run("Missing", func(t *testing.T) {
		at, err := store.Reset(ctx, "nope")
		if err != nil {
			t.Fatal(err)
		}
		if !at.IsZero() {
			t.Errorf("expected zero time, got %s", at)
		}
	})

	t.Run("NeverShrinks", func(t *testing.T) {
		later := time.Now().Add(time.Minute)
		if err := store.SetReset(ctx, "b", later); err != nil {
			t.Fatal(err)
		}
		if err := store.SetReset(ctx, "b", time.Now().Add(time.Second)); err != nil {
			t.Fatal(err)
		}
		at, err := store.Reset(ctx, "b")
		if err != nil {
			t.Fatal(err)
		}
		if at.UnixMilli() != later.UnixMilli() {
			t.Errorf("expected %d, got %d", later.UnixMilli(), at.UnixMilli())
		}
	})

	t.Run("DistributedState", func(t *testing.T) {
		a := NewGovernor(WithStore(store))
		b := NewGovernor(WithStore(store))
		a.SetLimit(ctx, "/shared", time.Now().Add(100*time.Millisecond))

		start := time.Now()
		if err := b.Check(ctx, "/shared"); err != nil {
			t.Fatal(err)
		}
		if time.Since(start) < 80*time.Millisecond {
			t.Error("Governor B should see the window recorded by Governor A")
		}
	})
}
