package crawler

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultRateFloor is the lowest rate the limiter backs off to, unless
	// the configured rate is already below it.
	defaultRateFloor = 1.0

	// maxRateCeiling caps recovery so a fast mirror host is not hammered.
	maxRateCeiling = 100.0

	// emaAlpha weights a new RTT observation against the running average.
	emaAlpha = 0.2

	// recoveryFactor is the per-observation increase while the host is fast.
	recoveryFactor = 1.1

	// backoffFactor bounds how far one slow response can drop the rate.
	backoffFactor = 0.5
)

// AdaptiveLimiter paces requests to the mirrored hosts, slowing down when
// response times exceed the target and recovering gradually when they do not.
type AdaptiveLimiter struct {
	limiter   *rate.Limiter
	targetRTT time.Duration
	mu        sync.RWMutex

	emaRTT      time.Duration
	currentRate float64
	floor       float64

	// unlimited limiters never adapt; throttled ones are pinned to floor.
	unlimited bool
	throttled bool
}

// NewAdaptiveLimiter creates a limiter starting at initialRPS requests per
// second. A non-positive initialRPS disables limiting entirely.
func NewAdaptiveLimiter(initialRPS int, targetRTT time.Duration) *AdaptiveLimiter {
	if initialRPS <= 0 {
		return &AdaptiveLimiter{
			limiter:   rate.NewLimiter(rate.Inf, 0),
			targetRTT: targetRTT,
			emaRTT:    targetRTT,
			unlimited: true,
		}
	}

	start := math.Min(float64(initialRPS), maxRateCeiling)
	floor := math.Min(defaultRateFloor, start)
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(rate.Limit(start), int(math.Ceil(start))),
		targetRTT:   targetRTT,
		currentRate: start,
		floor:       floor,
		emaRTT:      targetRTT,
	}
}

// Wait blocks until the next request may proceed or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// ObserveRTT folds one response time into the moving average and adjusts
// the rate: down (at most by half) when slower than target, up by 10% when
// faster.
func (a *AdaptiveLimiter) ObserveRTT(rtt time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.unlimited || a.throttled || rtt <= 0 {
		return
	}

	a.emaRTT = time.Duration(emaAlpha*float64(rtt) + (1-emaAlpha)*float64(a.emaRTT))
	ratio := float64(a.targetRTT) / float64(a.emaRTT)

	var next float64
	if ratio < 1 {
		next = math.Max(a.currentRate*ratio, a.currentRate*backoffFactor)
	} else {
		next = a.currentRate * recoveryFactor
	}
	next = a.clamp(next)

	if math.Abs(next-a.currentRate) > 0.1 {
		a.setLocked(next)
	}
}

// Throttle pins the limiter to its floor and suspends adaptation, used while
// the process is under memory pressure.
func (a *AdaptiveLimiter) Throttle() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.unlimited || a.throttled {
		return
	}
	a.throttled = true
	a.setLocked(a.floor)
}

// Release resumes adaptation after Throttle. The rate recovers from the
// floor through subsequent RTT observations.
func (a *AdaptiveLimiter) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.throttled = false
}

// CurrentRate returns the current limit in requests per second, or 0 when
// limiting is disabled.
func (a *AdaptiveLimiter) CurrentRate() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int(math.Round(a.currentRate))
}

// CurrentEMA returns the moving average of observed response times.
func (a *AdaptiveLimiter) CurrentEMA() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.emaRTT
}

func (a *AdaptiveLimiter) setLocked(rps float64) {
	a.currentRate = rps
	a.limiter.SetLimit(rate.Limit(rps))
	a.limiter.SetBurst(int(math.Ceil(rps)))
}

func (a *AdaptiveLimiter) clamp(rps float64) float64 {
	if rps < a.floor {
		return a.floor
	}
	if rps > maxRateCeiling {
		return maxRateCeiling
	}
	return rps
}
