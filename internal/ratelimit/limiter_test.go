package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterNew(t *testing.T) {
	l := New(2 * time.Second)
	if l.interval != 2*time.Second {
		t.Errorf("expected interval 2s, got %v", l.interval)
	}
}

func TestLimiterNewNegative(t *testing.T) {
	l := New(-time.Second)
	if l.interval != 0 {
		t.Errorf("expected interval 0, got %v", l.interval)
	}
}

func TestLimiterWaitImmediate(t *testing.T) {
	l := New(time.Second)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("expected near-instant first wait, got %v", elapsed)
	}
}

func TestLimiterWaitCancellation(t *testing.T) {
	l := New(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	_ = l.Wait(ctx)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := l.Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestLimiterCancelledContextNoPermit(t *testing.T) {
	l := New(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx); err == nil {
			t.Fatal("expected error for an already cancelled context")
		}
	}

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("cancelled waits consumed permits: first real wait took %v", elapsed)
	}
}

func TestLimiterCancelledWaitReturnsPermit(t *testing.T) {
	l := New(20 * time.Millisecond)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		_ = l.Wait(ctx)
		cancel()
	}

	// With leaked slots the next permit would be ~6 intervals away.
	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 60*time.Millisecond {
		t.Errorf("cancelled waits leaked permit slots: next permit took %v", elapsed)
	}
}

func TestLimiterSpacing(t *testing.T) {
	interval := 20 * time.Millisecond
	l := New(interval)

	n := 5
	start := time.Now()
	for i := 0; i < n; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	elapsed := time.Since(start)

	expected := time.Duration(n-1) * interval
	if elapsed < time.Duration(float64(expected)*0.8) {
		t.Errorf("permits issued too fast: %v for %d permits, want ~%v", elapsed, n, expected)
	}
	if elapsed > expected*3 {
		t.Errorf("permits issued too slowly: %v for %d permits, want ~%v", elapsed, n, expected)
	}
}

func TestLimiterConcurrentCallers(t *testing.T) {
	interval := 10 * time.Millisecond
	l := New(interval)

	var wg sync.WaitGroup
	var count atomic.Int64
	start := time.Now()
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2; j++ {
				if err := l.Wait(context.Background()); err == nil {
					count.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if count.Load() != 10 {
		t.Errorf("expected 10 permits, got %d", count.Load())
	}
	if elapsed := time.Since(start); elapsed < time.Duration(float64(9*interval)*0.8) {
		t.Errorf("concurrent callers burst: 10 permits in %v", elapsed)
	}
}

func TestLimiterZeroInterval(t *testing.T) {
	l := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("zero interval should not pace, took %v", elapsed)
	}
}
