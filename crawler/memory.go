package crawler

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// ThrottleLevel indicates memory pressure severity.
type ThrottleLevel int

const (
	// ThrottleNormal indicates memory usage is within normal bounds.
	ThrottleNormal ThrottleLevel = iota
	// ThrottleWarning indicates memory usage is elevated (75-90% of limit).
	ThrottleWarning
	// ThrottleCritical indicates memory usage is critical (>90% of limit).
	ThrottleCritical
)

func (l ThrottleLevel) String() string {
	switch l {
	case ThrottleWarning:
		return "warning"
	case ThrottleCritical:
		return "critical"
	default:
		return "normal"
	}
}

// MemoryWatcher samples heap usage against a budget and reports level
// changes. Large pages and images are held in memory between fetch and
// write, so a long mirror run can use it to slow fetching down.
type MemoryWatcher struct {
	mu         sync.Mutex
	limitBytes int64
	callback   func(level ThrottleLevel)
	lastLevel  ThrottleLevel
}

// NewMemoryWatcher creates a watcher with a budget of limitMB megabytes.
func NewMemoryWatcher(limitMB int64) *MemoryWatcher {
	return &MemoryWatcher{
		limitBytes: limitMB * 1024 * 1024,
		lastLevel:  ThrottleNormal,
	}
}

// Install sets the runtime soft memory limit to the watcher's budget and
// returns a function restoring the previous limit.
func (m *MemoryWatcher) Install() (restore func()) {
	m.mu.Lock()
	limit := m.limitBytes
	m.mu.Unlock()

	previous := debug.SetMemoryLimit(limit)
	return func() { debug.SetMemoryLimit(previous) }
}

// Check returns current heap usage as a percentage of the budget and the
// matching throttle level, invoking the callback when the level changed.
func (m *MemoryWatcher) Check() (usedPercent float64, level ThrottleLevel) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.Lock()
	limitBytes := float64(m.limitBytes)
	m.mu.Unlock()

	if limitBytes <= 0 {
		return 0, ThrottleNormal
	}

	usedPercent = float64(memStats.HeapAlloc) / limitBytes * 100

	switch {
	case usedPercent >= 90:
		level = ThrottleCritical
	case usedPercent >= 75:
		level = ThrottleWarning
	default:
		level = ThrottleNormal
	}

	m.mu.Lock()
	changed := level != m.lastLevel
	m.lastLevel = level
	callback := m.callback
	m.mu.Unlock()

	if changed && callback != nil {
		callback(level)
	}
	return usedPercent, level
}

// Watch calls Check every interval until ctx is done.
func (m *MemoryWatcher) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// SetThrottleCallback registers a callback invoked when the level changes.
func (m *MemoryWatcher) SetThrottleCallback(cb func(level ThrottleLevel)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

// SetLimit updates the budget in bytes.
func (m *MemoryWatcher) SetLimit(limitBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limitBytes = limitBytes
}

// throttleLimiter returns a callback that pins limiter to its floor while
// memory is critical.
func throttleLimiter(limiter *AdaptiveLimiter) func(ThrottleLevel) {
	return func(level ThrottleLevel) {
		if level == ThrottleCritical {
			limiter.Throttle()
			return
		}
		limiter.Release()
	}
}
