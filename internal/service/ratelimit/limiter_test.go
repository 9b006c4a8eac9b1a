package ratelimit

import (
	"testing"
	"time"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestCheckThenConsumeStaysWithinMinuteCeiling(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 5, 0, time.UTC)
	l := New(10, 1000, WithClock(fixedClock(&now)))

	consumed := 0
	for i := 0; i < 50; i++ {
		if l.CheckLimit(3) {
			l.Consume(3)
			consumed += 3
		}
	}
	minute, _ := l.Stats()
	if minute.Used > 10 {
		t.Fatalf("minute used %d exceeds ceiling 10", minute.Used)
	}
	if consumed != 9 {
		t.Fatalf("expected 9 consumed within window, got %d", consumed)
	}
}

func TestWindowRollsOnMinuteBoundary(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 59, 0, time.UTC)
	l := New(10, 1000, WithClock(fixedClock(&now)))

	l.Consume(10)
	if l.CheckLimit(1) {
		t.Fatalf("expected minute window exhausted")
	}

	now = now.Add(2 * time.Second) // crosses 10:01:00
	if !l.CheckLimit(1) {
		t.Fatalf("expected fresh minute window after boundary")
	}
	minute, day := l.Stats()
	if minute.Used != 0 {
		t.Fatalf("minute used = %d after rollover", minute.Used)
	}
	if day.Used != 10 {
		t.Fatalf("day used = %d, rollover must not touch the day window", day.Used)
	}
}

func TestDayWindowRollsAtUTCMidnight(t *testing.T) {
	now := time.Date(2024, 10, 10, 23, 59, 30, 0, time.UTC)
	l := New(1000, 20, WithClock(fixedClock(&now)))

	l.Consume(20)
	if l.CheckLimit(1) {
		t.Fatalf("expected day window exhausted")
	}

	now = now.Add(time.Minute)
	if !l.CheckLimit(1) {
		t.Fatalf("expected fresh day window after midnight")
	}
}

func TestConsumeNeverGoesNegativeOrPastCeiling(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 5, 0, time.UTC)
	l := New(5, 100, WithClock(fixedClock(&now)))

	l.Consume(-3)
	l.Consume(0)
	minute, _ := l.Stats()
	if minute.Used != 0 {
		t.Fatalf("non-positive consume mutated state: %d", minute.Used)
	}

	// Skipping CheckLimit must clamp, not corrupt.
	l.Consume(50)
	minute, _ = l.Stats()
	if minute.Used != 5 || minute.Remaining != 0 {
		t.Fatalf("clamp failed: used=%d remaining=%d", minute.Used, minute.Remaining)
	}
}

func TestOptimalDelay(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	l := New(10, 1000, WithClock(fixedClock(&now)), WithMaxBatchDelay(time.Minute))

	if d := l.OptimalDelay(); d != 0 {
		t.Fatalf("idle window delay = %v, want 0", d)
	}

	l.Consume(10)
	d := l.OptimalDelay()
	if d <= 0 {
		t.Fatalf("exhausted window delay = %v, want > 0", d)
	}
	if d > time.Minute {
		t.Fatalf("delay %v exceeds cap", d)
	}
}

func TestApproachingLimit(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 5, 0, time.UTC)
	l := New(10, 1000, WithClock(fixedClock(&now)), WithApproachThreshold(0.8))

	l.Consume(7)
	if l.IsApproachingLimit() {
		t.Fatalf("70%% usage should not be approaching at 0.8 threshold")
	}
	l.Consume(1)
	if !l.IsApproachingLimit() {
		t.Fatalf("80%% usage should be approaching")
	}
}

func TestUsagePercent(t *testing.T) {
	now := time.Date(2024, 10, 10, 10, 0, 5, 0, time.UTC)
	l := New(20, 1000, WithClock(fixedClock(&now)))
	l.Consume(5)
	if p := l.UsagePercent(); p != 25 {
		t.Fatalf("usage percent = %v, want 25", p)
	}
}
