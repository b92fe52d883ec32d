package crawler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewAdaptiveLimiter(t *testing.T) {
	tests := []struct {
		name       string
		initialRPS int
		targetRTT  time.Duration
		wantRate   int
	}{
		{
			name:       "default values",
			initialRPS: 10,
			targetRTT:  500 * time.Millisecond,
			wantRate:   10,
		},
		{
			name:       "above ceiling is clamped",
			initialRPS: 500,
			targetRTT:  100 * time.Millisecond,
			wantRate:   100,
		},
		{
			name:       "one request per second",
			initialRPS: 1,
			targetRTT:  500 * time.Millisecond,
			wantRate:   1,
		},
		{
			name:       "zero disables limiting",
			initialRPS: 0,
			targetRTT:  500 * time.Millisecond,
			wantRate:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewAdaptiveLimiter(tt.initialRPS, tt.targetRTT)
			if got := limiter.CurrentRate(); got != tt.wantRate {
				t.Errorf("CurrentRate() = %d, want %d", got, tt.wantRate)
			}
		})
	}
}

func TestAdaptiveLimiter_Wait_ContextCancellation(t *testing.T) {
	limiter := NewAdaptiveLimiter(1, 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("First Wait() failed: %v", err)
	}

	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("Wait() should have failed with cancelled context")
	}
}

func TestAdaptiveLimiter_UnlimitedNeverBlocks(t *testing.T) {
	limiter := NewAdaptiveLimiter(0, 200*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for range 1000 {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}
	limiter.ObserveRTT(10 * time.Second)
	if got := limiter.CurrentRate(); got != 0 {
		t.Errorf("unlimited limiter adapted to %d", got)
	}
}

func TestAdaptiveLimiter_ObserveRTT_Backoff(t *testing.T) {
	limiter := NewAdaptiveLimiter(10, 200*time.Millisecond)

	for range 5 {
		limiter.ObserveRTT(500 * time.Millisecond)
	}

	got := limiter.CurrentRate()
	if got >= 10 {
		t.Errorf("CurrentRate() = %d, should have backed off below initial 10", got)
	}
	if got < 1 {
		t.Errorf("CurrentRate() = %d, should not drop below floor of 1", got)
	}
}

func TestAdaptiveLimiter_ObserveRTT_Recovery(t *testing.T) {
	limiter := NewAdaptiveLimiter(10, 200*time.Millisecond)

	for range 10 {
		limiter.ObserveRTT(500 * time.Millisecond)
	}
	afterBackoff := limiter.CurrentRate()
	if afterBackoff >= 10 {
		t.Fatalf("Expected backoff, got rate %d", afterBackoff)
	}

	for range 40 {
		limiter.ObserveRTT(50 * time.Millisecond)
	}
	if got := limiter.CurrentRate(); got <= afterBackoff {
		t.Errorf("CurrentRate() = %d, should have recovered above %d", got, afterBackoff)
	}
}

func TestAdaptiveLimiter_FloorAndCeiling(t *testing.T) {
	slow := NewAdaptiveLimiter(10, 200*time.Millisecond)
	for range 50 {
		slow.ObserveRTT(5 * time.Second)
	}
	if got := slow.CurrentRate(); got != 1 {
		t.Errorf("CurrentRate() = %d, want floor of 1", got)
	}

	fast := NewAdaptiveLimiter(10, 200*time.Millisecond)
	for range 100 {
		fast.ObserveRTT(1 * time.Millisecond)
	}
	if got := fast.CurrentRate(); got != 100 {
		t.Errorf("CurrentRate() = %d, want ceiling of 100", got)
	}
}

func TestAdaptiveLimiter_SingleOutlierHalvesAtMost(t *testing.T) {
	limiter := NewAdaptiveLimiter(40, 200*time.Millisecond)
	before := limiter.CurrentRate()

	limiter.ObserveRTT(5 * time.Second)

	after := limiter.CurrentRate()
	if after >= before {
		t.Errorf("rate should drop after slow RTT, got %d (was %d)", after, before)
	}
	if after < before/2 {
		t.Errorf("one outlier dropped the rate from %d to %d", before, after)
	}
}

func TestAdaptiveLimiter_ThrottleAndRelease(t *testing.T) {
	limiter := NewAdaptiveLimiter(10, 200*time.Millisecond)

	limiter.Throttle()
	if got := limiter.CurrentRate(); got != 1 {
		t.Fatalf("Throttle() rate = %d, want floor 1", got)
	}

	// Fast responses do not lift a throttled limiter.
	for range 10 {
		limiter.ObserveRTT(10 * time.Millisecond)
	}
	if got := limiter.CurrentRate(); got != 1 {
		t.Errorf("rate changed while throttled: %d", got)
	}

	limiter.Release()
	for range 10 {
		limiter.ObserveRTT(10 * time.Millisecond)
	}
	if got := limiter.CurrentRate(); got <= 1 {
		t.Errorf("rate did not recover after Release(): %d", got)
	}
}

func TestAdaptiveLimiter_CurrentEMA(t *testing.T) {
	targetRTT := 200 * time.Millisecond
	limiter := NewAdaptiveLimiter(10, targetRTT)

	if got := limiter.CurrentEMA(); got != targetRTT {
		t.Errorf("Initial CurrentEMA() = %v, want %v", got, targetRTT)
	}

	for range 3 {
		limiter.ObserveRTT(300 * time.Millisecond)
	}

	ema := limiter.CurrentEMA()
	if ema <= targetRTT || ema > 300*time.Millisecond {
		t.Errorf("CurrentEMA() = %v, want between %v and 300ms", ema, targetRTT)
	}
}

func TestAdaptiveLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewAdaptiveLimiter(100, 200*time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_ = limiter.Wait(ctx)
				limiter.ObserveRTT(100 * time.Millisecond)
				_ = limiter.CurrentRate()
			}
		}()
	}
	wg.Wait()
}
