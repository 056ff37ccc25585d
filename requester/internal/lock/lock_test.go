package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRedisLocker(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, ttl, quiet()), mr
}

func TestKey(t *testing.T) {
	k := Key("src1", "ai", "", "rumor")
	if !strings.HasPrefix(k, "newsnexus:src1:") {
		t.Fatalf("key: %s", k)
	}
	if k == Key("src2", "ai", "", "rumor") || k == Key("src1", "ai", "rumor", "") {
		t.Fatal("distinct triples share a key")
	}
}

// exerciseLocker checks the behaviour every Locker shares.
func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "k1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("second acquire: got %v, want ErrLocked", err)
	}
	other, err := l.Acquire(ctx, "k2")
	if err != nil {
		t.Fatalf("other key: %v", err)
	}
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "k1")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}

func TestLocal(t *testing.T) {
	exerciseLocker(t, NewLocal())
}

func TestLocal_Concurrent(t *testing.T) {
	// WHAT: Of many concurrent acquirers, exactly one wins.
	// WHY: Two runs of one signature would both see the window as uncovered.
	l := NewLocal()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.Acquire(context.Background(), "k"); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners: got %d, want 1", wins.Load())
	}
}

func TestLocal_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal().Acquire(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err: got %v", err)
	}
}

func TestRedis(t *testing.T) {
	l, _ := newRedisLocker(t, time.Minute)
	exerciseLocker(t, l)
}

func TestRedis_TTLExpiry(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()
	if _, err := l.Acquire(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)
	release, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire after ttl: %v", err)
	}
	release()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	// WHAT: A stale release does not delete a lock re-acquired by someone else.
	l, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := l.Acquire(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	stale()
	if !mr.Exists("k") {
		t.Fatal("stale release removed the new holder's key")
	}
}

func TestRedis_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	l := NewRedis(client, time.Minute, quiet())
	if _, err := l.Acquire(context.Background(), "k"); err == nil || errors.Is(err, ErrLocked) {
		t.Fatalf("err: got %v", err)
	}
}
