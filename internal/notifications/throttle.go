// internal/notifications/throttle.go
package notifications

import (
    "sync"
    "time"

    "sitewarden/internal/config"
)

// Throttler caps notifications per target and in total within a sliding window.
type Throttler struct {
    config       *config.ThrottleConfig
    targetCounts map[string][]time.Time
    totalCounts  []time.Time
    now          func() time.Time
    mu           sync.Mutex
}

func NewThrottler(cfg *config.ThrottleConfig) *Throttler {
    return &Throttler{
        config:       cfg,
        targetCounts: make(map[string][]time.Time),
        now:          time.Now,
    }
}

// Allow reports whether a notification for targetID may go out now and, if so,
// counts it against both limits under the same lock.
func (t *Throttler) Allow(targetID string) bool {
    if !t.config.Enabled {
        return true
    }

    t.mu.Lock()
    defer t.mu.Unlock()

    now := t.now()
    windowStart := now.Add(-t.config.Window)
    t.cleanup(windowStart)

    if t.throttledLocked(targetID, windowStart) {
        return false
    }
    t.targetCounts[targetID] = append(t.targetCounts[targetID], now)
    t.totalCounts = append(t.totalCounts, now)
    return true
}

// IsThrottled reports whether Allow would refuse targetID, without counting.
func (t *Throttler) IsThrottled(targetID string) bool {
    if !t.config.Enabled {
        return false
    }

    t.mu.Lock()
    defer t.mu.Unlock()
    return t.throttledLocked(targetID, t.now().Add(-t.config.Window))
}

func (t *Throttler) throttledLocked(targetID string, windowStart time.Time) bool {
    if t.config.MaxPerTarget > 0 && countSince(t.targetCounts[targetID], windowStart) >= t.config.MaxPerTarget {
        return true
    }
    return t.config.MaxTotal > 0 && countSince(t.totalCounts, windowStart) >= t.config.MaxTotal
}

func (t *Throttler) Stats() map[string]interface{} {
    t.mu.Lock()
    defer t.mu.Unlock()

    return map[string]interface{}{
        "throttle_window":         t.config.Window.String(),
        "throttle_max_per_target": t.config.MaxPerTarget,
        "throttle_max_total":      t.config.MaxTotal,
        "throttle_target_count":   len(t.targetCounts),
        "throttle_total_recent":   len(t.totalCounts),
    }
}

func (t *Throttler) cleanup(windowStart time.Time) {
    for id, times := range t.targetCounts {
        kept := keepSince(times, windowStart)
        if len(kept) == 0 {
            delete(t.targetCounts, id)
        } else {
            t.targetCounts[id] = kept
        }
    }
    t.totalCounts = keepSince(t.totalCounts, windowStart)
}

func countSince(times []time.Time, start time.Time) int {
    n := 0
    for _, ts := range times {
        if ts.After(start) {
            n++
        }
    }
    return n
}

func keepSince(times []time.Time, start time.Time) []time.Time {
    kept := times[:0]
    for _, ts := range times {
        if ts.After(start) {
            kept = append(kept, ts)
        }
    }
    return kept
}
