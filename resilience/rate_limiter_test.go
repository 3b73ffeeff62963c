package resilience

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/boundguard/memory"
)

func newTestLimiter(clock *fakeClock, capacity int, refill float64) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		Name:       "test",
		Capacity:   capacity,
		RefillRate: refill,
		Now:        clock.Now,
	})
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, 10, 1)

	for i := 0; i < 10; i++ {
		if !rl.Allow("client") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("client") {
		t.Fatal("11th request should be rate limited")
	}

	clock.Advance(time.Second)
	if !rl.Allow("client") {
		t.Error("one request should pass after 1s")
	}
	if rl.Allow("client") {
		t.Error("only one request should pass after 1s")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, 1, 1)

	if !rl.Allow("a") || !rl.Allow("b") {
		t.Fatal("first request per key should pass")
	}
	if rl.Allow("a") {
		t.Error("a should be limited")
	}
	if rl.Snapshot().Keys != 2 {
		t.Errorf("expected 2 buckets, got %d", rl.Snapshot().Keys)
	}
}

func TestRateLimiter_RefillCapsAtCapacity(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, 3, 1)
	rl.Allow("k")

	clock.Advance(time.Hour)
	if got := rl.Tokens("k"); got != 3 {
		t.Errorf("expected tokens capped at 3, got %v", got)
	}
}

func TestRateLimiter_CheckAndExecute(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, 1, 1)

	calls := 0
	if err := rl.Execute("k", func() error { calls++; return nil }); err != nil {
		t.Fatalf("expected first call admitted, got %v", err)
	}
	err := rl.Execute("k", func() error { calls++; return nil })
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected fn to run once, ran %d times", calls)
	}
	if err := rl.Check("k"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected Check to report ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_OnLimitCallback(t *testing.T) {
	var limited atomic.Int32
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimiterConfig{
		Name:       "test",
		Capacity:   1,
		RefillRate: 1,
		Now:        clock.Now,
		OnLimit: func(name, key string) {
			if key != "user-1" {
				t.Errorf("unexpected key %s", key)
			}
			limited.Add(1)
		},
	})

	rl.Allow("user-1")
	rl.Allow("user-1")
	rl.Allow("user-1")

	if limited.Load() != 2 {
		t.Errorf("expected 2 limited calls, got %d", limited.Load())
	}
}

func TestRateLimiter_BoundedKeys(t *testing.T) {
	sentinel := memory.NewSentinel(memory.DefaultConfig())
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimiterConfig{
		Name:       "api",
		Capacity:   1,
		RefillRate: 1,
		MaxKeys:    100,
		Sentinel:   sentinel,
		Now:        clock.Now,
	})

	for i := 0; i < 10_000; i++ {
		rl.Allow(fmt.Sprintf("ip-%d", i))
	}

	if rl.Snapshot().Keys != 100 {
		t.Errorf("expected 100 buckets, got %d", rl.Snapshot().Keys)
	}
	status := sentinel.Status()
	if len(status) != 1 || status[0].Name != "api.buckets" || status[0].Evicted != 9900 {
		t.Errorf("unexpected sentinel status %+v", status)
	}
}

func TestRateLimiter_DegradedAfterDenial(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimiterConfig{
		Name:           "test",
		Capacity:       1,
		RefillRate:     1,
		DegradedWindow: 5 * time.Second,
		Now:            clock.Now,
	})

	rl.Allow("k")
	if rl.Degraded() {
		t.Error("no denial yet")
	}
	rl.Allow("k")
	if !rl.Degraded() {
		t.Error("expected degraded right after a denial")
	}
	clock.Advance(5 * time.Second)
	if rl.Degraded() {
		t.Error("expected recovery after the window")
	}

	snap := rl.Snapshot()
	if snap.Allowed != 1 || snap.Denied != 1 {
		t.Errorf("unexpected counters %+v", snap)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, 50, 1)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 50 {
		t.Errorf("expected exactly 50 admitted, got %d", admitted.Load())
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Name: "d"})
	if rl.Capacity() != 10 || rl.RefillRate() != 1 {
		t.Errorf("unexpected defaults capacity=%d rate=%v", rl.Capacity(), rl.RefillRate())
	}
	if rl.Snapshot().MaxKeys != 10_000 {
		t.Errorf("expected default MaxKeys 10000, got %d", rl.Snapshot().MaxKeys)
	}
}
