package attendance

import (
	"sync"
	"time"

	"classcheckin/internal/metrics"
)

// Scheduler runs one expiry callback per session.
type Scheduler interface {
	// Schedule arms fire to run at at, replacing any timer already armed for sessionID.
	Schedule(sessionID string, at time.Time, fire func())
	// Cancel disarms the timer for sessionID, if any.
	Cancel(sessionID string)
	// Stop disarms every timer; later Schedule calls are ignored.
	Stop()
}

// TimerScheduler is a Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	now     func() time.Time
	stopped bool
}

// NewTimerScheduler creates a scheduler measuring delays against now.
func NewTimerScheduler(now func() time.Time) *TimerScheduler {
	if now == nil {
		now = time.Now
	}
	return &TimerScheduler{timers: make(map[string]*time.Timer), now: now}
}

func (t *TimerScheduler) Schedule(sessionID string, at time.Time, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if old, ok := t.timers[sessionID]; ok {
		old.Stop()
	}
	delay := at.Sub(t.now())
	if delay < 0 {
		delay = 0
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.timers[sessionID] == timer {
			delete(t.timers, sessionID)
		}
		metrics.ArmedTimers.Set(float64(len(t.timers)))
		t.mu.Unlock()
		fire()
	})
	t.timers[sessionID] = timer
	metrics.ArmedTimers.Set(float64(len(t.timers)))
}

func (t *TimerScheduler) Cancel(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[sessionID]; ok {
		timer.Stop()
		delete(t.timers, sessionID)
	}
	metrics.ArmedTimers.Set(float64(len(t.timers)))
}

func (t *TimerScheduler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	metrics.ArmedTimers.Set(0)
}

// Pending returns the number of armed timers.
func (t *TimerScheduler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
