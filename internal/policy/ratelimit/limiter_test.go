package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	// 10 requests per second = 100ms interval, burst 1.
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	start := time.Now()
	if err := l.Wait(ctx, "https://otakudesu.test/anime-list/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	// Next one should wait ~100ms
	start = time.Now()
	if err := l.Wait(ctx, "https://otakudesu.test/anime/frieren/"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentDomains(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1, // 1 RPS = 1s interval
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Domain B should not be blocked by A
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("domain B blocked unexpectedly")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 50 {
		if err := l.Wait(ctx, "https://otakudesu.test/"); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("unlimited limiter throttled: %v", time.Since(start))
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "https://slow.test/"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://slow.test/")
	if err == nil {
		t.Fatal("expected error when context expires before a token is available")
	}
}

func TestLimiter_HostCaseAndPortShareBucket(t *testing.T) {
	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "https://otakudesu.test/anime-list/"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://OtakuDesu.TEST:443/wp-admin/admin-ajax.php"); err == nil {
		t.Fatal("expected the same host to draw from the exhausted bucket")
	}
	if got := len(l.limiters); got != 1 {
		t.Errorf("expected one bucket, got %d", got)
	}
	if _, ok := l.limiters["otakudesu.test"]; !ok {
		t.Errorf("expected bucket keyed by lowercase hostname, got %v", l.limiters)
	}
}
