package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/testdb"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
}

// slidingWindowScenario runs the five-in-five-minutes scenario against any store.
func slidingWindowScenario(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	clock := newClock()
	l := New(store, WithClock(clock.Now))

	for i := 1; i <= 5; i++ {
		allowed, err := l.CheckLimit(ctx, "10.0.0.1", "login", DefaultRule)
		if err != nil {
			t.Fatalf("Attempt %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("Attempt %d should be allowed", i)
		}
		clock.Advance(10 * time.Second)
	}

	allowed, err := l.CheckLimit(ctx, "10.0.0.1", "login", DefaultRule)
	if err != nil {
		t.Fatalf("Attempt 6: %v", err)
	}
	if allowed {
		t.Fatal("Attempt 6 within the window should be denied")
	}

	allowed, err = l.CheckLimit(ctx, "10.0.0.2", "login", DefaultRule)
	if err != nil || !allowed {
		t.Fatalf("Other identifier should be unaffected: %v %v", allowed, err)
	}

	allowed, err = l.CheckLimit(ctx, "10.0.0.1", "order_create", DefaultRule)
	if err != nil || !allowed {
		t.Fatalf("Other action should be unaffected: %v %v", allowed, err)
	}

	clock.Advance(DefaultRule.Window)

	allowed, err = l.CheckLimit(ctx, "10.0.0.1", "login", DefaultRule)
	if err != nil {
		t.Fatalf("Attempt after window: %v", err)
	}
	if !allowed {
		t.Error("Attempt after the window elapsed should be allowed")
	}
}

func TestMemoryStoreSlidingWindow(t *testing.T) {
	slidingWindowScenario(t, NewMemoryStore())
}

func TestRedisStoreSlidingWindow(t *testing.T) {
	addr := testdb.NewRedis(t)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	slidingWindowScenario(t, NewRedisStore(client))
}

func TestDeniedAttemptIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	l := New(NewMemoryStore(), WithClock(clock.Now))
	rule := Rule{MaxAttempts: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		if ok, _ := l.CheckLimit(ctx, "id", "a", rule); !ok {
			t.Fatalf("Attempt %d should be allowed", i+1)
		}
	}

	clock.Advance(30 * time.Second)
	for i := 0; i < 10; i++ {
		if ok, _ := l.CheckLimit(ctx, "id", "a", rule); ok {
			t.Fatal("Should be denied")
		}
	}

	// The first two attempts leave the window after 60s; denied ones never entered it.
	clock.Advance(31 * time.Second)
	if ok, _ := l.CheckLimit(ctx, "id", "a", rule); !ok {
		t.Error("Denied attempts must not extend the window")
	}
}

func TestEnforce(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l := New(NewMemoryStore(), WithMetrics(m))
	rule := Rule{MaxAttempts: 1, Window: 5 * time.Minute}

	if err := l.Enforce(ctx, "id", "admin_auth", rule); err != nil {
		t.Fatalf("First attempt: %v", err)
	}

	err := l.Enforce(ctx, "id", "admin_auth", rule)
	var tooMany *TooManyAttemptsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("Expected TooManyAttemptsError, got %v", err)
	}
	if tooMany.RetryAfter != 5*time.Minute {
		t.Errorf("Expected retry after 5m, got %s", tooMany.RetryAfter)
	}

	if got := testutil.ToFloat64(m.RateLimitDenied.WithLabelValues("admin_auth")); got != 1 {
		t.Errorf("Expected 1 denial, got %v", got)
	}
}

func TestExceededDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())
	rule := Rule{MaxAttempts: 1, Window: time.Minute}

	for i := 0; i < 3; i++ {
		exceeded, err := l.Exceeded(ctx, "id", "a", rule)
		if err != nil {
			t.Fatalf("Exceeded: %v", err)
		}
		if exceeded {
			t.Fatal("Exceeded must not record attempts")
		}
	}

	if ok, _ := l.CheckLimit(ctx, "id", "a", rule); !ok {
		t.Fatal("First real attempt should be allowed")
	}
	if exceeded, _ := l.Exceeded(ctx, "id", "a", rule); !exceeded {
		t.Error("Should be exceeded after the only allowed attempt")
	}
}

func TestMemoryStoreHousekeeping(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewMemoryStore()
	l := New(store, WithClock(clock.Now))
	rule := Rule{MaxAttempts: 5, Window: 2 * time.Hour}

	for _, id := range []string{"a", "b", "c"} {
		if _, err := l.CheckLimit(ctx, id, "login", rule); err != nil {
			t.Fatalf("CheckLimit: %v", err)
		}
	}
	if store.Len() != 3 {
		t.Fatalf("Expected 3 buckets, got %d", store.Len())
	}

	clock.Advance(time.Hour + time.Second)
	if _, err := l.CheckLimit(ctx, "d", "login", rule); err != nil {
		t.Fatalf("CheckLimit: %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("Buckets untouched for an hour should be dropped, %d left", store.Len())
	}
}

func TestKeyIsStable(t *testing.T) {
	if Key("login", "1.2.3.4") != Key("login", "1.2.3.4") {
		t.Error("Key should be deterministic")
	}
	if Key("login", "1.2.3.4") == Key("order_create", "1.2.3.4") {
		t.Error("Different actions must not share a bucket")
	}
	if len(Key("a", "b")) != 64 {
		t.Errorf("Expected hex sha256, got %q", Key("a", "b"))
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())
	rule := Rule{MaxAttempts: 10, Window: time.Minute}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.CheckLimit(ctx, "shared", "order_create", rule)
			if err != nil {
				t.Errorf("CheckLimit: %v", err)
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("Expected exactly 10 allowed attempts, got %d", allowed)
	}
}
