package ratelimit

import (
	"sync"
	"time"

	"TradePulse/internal/domain/models"
)

// Limiter tracks provider call budget over rolling minute and day windows.
// Windows roll forward on wall-clock boundaries (minute boundary, UTC day
// boundary); rolling over resets the counter to zero.
//
// CheckLimit and Consume are individually atomic but deliberately not atomic
// with each other; callers tolerate the race by reserving conservative
// worst-case estimates before spending.
type Limiter struct {
	mu sync.Mutex

	minuteLimit int
	dayLimit    int

	minuteUsed  int
	dayUsed     int
	minuteStart time.Time
	dayStart    time.Time

	approachThreshold float64
	maxBatchDelay     time.Duration

	now func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithApproachThreshold sets the usage fraction at which IsApproachingLimit
// reports true.
func WithApproachThreshold(f float64) Option {
	return func(l *Limiter) {
		if f > 0 && f < 1 {
			l.approachThreshold = f
		}
	}
}

// WithMaxBatchDelay caps the delay returned by OptimalDelay.
func WithMaxBatchDelay(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.maxBatchDelay = d
		}
	}
}

// New creates a Limiter with per-minute and per-day ceilings.
func New(minuteLimit, dayLimit int, opts ...Option) *Limiter {
	l := &Limiter{
		minuteLimit:       minuteLimit,
		dayLimit:          dayLimit,
		approachThreshold: 0.8,
		maxBatchDelay:     30 * time.Second,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	t := l.now()
	l.minuteStart = t.Truncate(time.Minute)
	l.dayStart = dayFloor(t)
	return l
}

func dayFloor(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// roll resets any window whose wall-clock boundary has passed. Caller holds mu.
func (l *Limiter) roll(t time.Time) {
	if minute := t.Truncate(time.Minute); minute.After(l.minuteStart) {
		l.minuteStart = minute
		l.minuteUsed = 0
	}
	if day := dayFloor(t); day.After(l.dayStart) {
		l.dayStart = day
		l.dayUsed = 0
	}
}

// CheckLimit reports whether consuming n calls would stay within both
// ceilings. State is not mutated.
func (l *Limiter) CheckLimit(n int) bool {
	if n < 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll(l.now())
	return l.minuteUsed+n <= l.minuteLimit && l.dayUsed+n <= l.dayLimit
}

// Consume spends n calls from both windows. Counters are clamped at the
// ceiling so a caller that skipped CheckLimit cannot corrupt internal state;
// it only risks provider-side throttling.
func (l *Limiter) Consume(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll(l.now())
	l.minuteUsed += n
	if l.minuteUsed > l.minuteLimit {
		l.minuteUsed = l.minuteLimit
	}
	l.dayUsed += n
	if l.dayUsed > l.dayLimit {
		l.dayUsed = l.dayLimit
	}
}

// Stats returns used/remaining/reset-time per window.
func (l *Limiter) Stats() (minute, day models.WindowStats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll(l.now())
	minute = models.WindowStats{
		Used:      l.minuteUsed,
		Limit:     l.minuteLimit,
		Remaining: l.minuteLimit - l.minuteUsed,
		ResetAt:   l.minuteStart.Add(time.Minute),
	}
	day = models.WindowStats{
		Used:      l.dayUsed,
		Limit:     l.dayLimit,
		Remaining: l.dayLimit - l.dayUsed,
		ResetAt:   l.dayStart.Add(24 * time.Hour),
	}
	return minute, day
}

// RemainingCalls returns the tighter of the two windows' remaining budget.
func (l *Limiter) RemainingCalls() int {
	minute, day := l.Stats()
	if day.Remaining < minute.Remaining {
		return day.Remaining
	}
	return minute.Remaining
}

// UsagePercent returns minute-window usage as a percentage.
func (l *Limiter) UsagePercent() float64 {
	minute, _ := l.Stats()
	if minute.Limit == 0 {
		return 100
	}
	return float64(minute.Used) / float64(minute.Limit) * 100
}

// IsApproachingLimit reports whether either window has crossed the
// configured usage threshold.
func (l *Limiter) IsApproachingLimit() bool {
	minute, day := l.Stats()
	if minute.Limit > 0 && float64(minute.Used)/float64(minute.Limit) >= l.approachThreshold {
		return true
	}
	return day.Limit > 0 && float64(day.Used)/float64(day.Limit) >= l.approachThreshold
}

// OptimalDelay returns a pause proportional to how close the minute window
// is to exhaustion. Idle windows produce no delay; a nearly spent window
// asks for up to the remaining time until the minute rolls over.
func (l *Limiter) OptimalDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.now()
	l.roll(t)
	if l.minuteLimit == 0 {
		return l.maxBatchDelay
	}
	frac := float64(l.minuteUsed) / float64(l.minuteLimit)
	if frac < 0.5 {
		return 0
	}
	untilReset := l.minuteStart.Add(time.Minute).Sub(t)
	if untilReset < 0 {
		untilReset = 0
	}
	// Scale linearly from no wait at 50% usage to the full until-reset wait
	// at 100%.
	d := time.Duration(float64(untilReset) * (frac - 0.5) * 2)
	if d > l.maxBatchDelay {
		d = l.maxBatchDelay
	}
	return d
}
