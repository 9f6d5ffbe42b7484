package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCycleLock_Exclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	lock := NewCycleLock(client, 30*time.Second, scannerLogger())

	if !lock.TryAcquire(ctx) {
		t.Fatal("first acquire should succeed")
	}
	if lock.TryAcquire(ctx) {
		t.Error("second acquire should fail while held")
	}

	lock.Release(ctx)
	if !lock.TryAcquire(ctx) {
		t.Error("acquire after release should succeed")
	}
}

func TestCycleLock_TTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	lock := NewCycleLock(client, time.Second, scannerLogger())

	if !lock.TryAcquire(ctx) {
		t.Fatal("first acquire should succeed")
	}

	mr.FastForward(2 * time.Second)

	if !lock.TryAcquire(ctx) {
		t.Error("acquire should succeed after the TTL lapses")
	}
}
