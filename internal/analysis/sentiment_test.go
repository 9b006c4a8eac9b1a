package analysis

import (
	"context"
	"strings"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/pkg/logger"
)

func intradayWindow(n int, start time.Time, step time.Duration, build func(i int) (o, h, l, c, v float64)) []models.Bar {
	bars := make([]models.Bar, n)
	for i := 0; i < n; i++ {
		o, h, l, c, v := build(i)
		bars[i] = models.Bar{
			Symbol:    "AAPL",
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      o, High: h, Low: l, Close: c, Volume: v,
		}
	}
	return bars
}

func TestSentimentInsufficientBarsReturnsNeutral(t *testing.T) {
	start := time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		intraday: intradayWindow(5, start, 5*time.Minute, func(i int) (float64, float64, float64, float64, float64) {
			return 100, 101, 99, 100, 1000
		}),
	}
	layer := NewSentiment(provider, ratelimit.New(60, 1000), "5m", logger.Nop())

	res := layer.Analyze(context.Background(), "AAPL")
	if res.Score != 50 || res.DataComplete {
		t.Errorf("res = %+v, want neutral", res)
	}
	reason, _ := res.Data["unavailable_reason"].(string)
	if !strings.Contains(reason, "insufficient data") {
		t.Errorf("reason = %q", reason)
	}
}

func TestSentimentVelocityAndSurgeScoreBullish(t *testing.T) {
	start := time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC)
	// Steady climb 100 -> 106 over 2h with a volume surge in the last bars.
	bars := intradayWindow(24, start, 5*time.Minute, func(i int) (float64, float64, float64, float64, float64) {
		c := 100 + float64(i)*0.25
		vol := 1000.0
		if i >= 21 {
			vol = 5000
		}
		return c - 0.1, c + 0.15, c - 0.2, c, vol
	})
	m := ComputeSentimentMetrics(bars)
	if m.VelocityPctPerHour < 2 {
		t.Fatalf("velocity = %v, want >= 2", m.VelocityPctPerHour)
	}
	if m.VolumeAnomaly < 2.5 {
		t.Fatalf("volume anomaly = %v, want >= 2.5", m.VolumeAnomaly)
	}

	res := ScoreSentiment(m)
	if res.Score <= 50 {
		t.Errorf("score = %v, want bullish (> 50)", res.Score)
	}
	var surge, confirm bool
	for _, s := range res.Signals {
		if strings.Contains(s, "volume surge:") {
			surge = true
		}
		if strings.Contains(s, "confirms price direction") {
			confirm = true
		}
	}
	if !surge || !confirm {
		t.Errorf("signals = %v, want surge plus confirmation bonus", res.Signals)
	}
}

func TestSentimentAccumulationPattern(t *testing.T) {
	start := time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC)
	// Higher lows throughout, volume building in the back half.
	bars := intradayWindow(16, start, 5*time.Minute, func(i int) (float64, float64, float64, float64, float64) {
		lo := 100 + float64(i)*0.1
		vol := 1000.0
		if i >= 8 {
			vol = 2000
		}
		return lo + 0.1, lo + 0.4, lo, lo + 0.3, vol
	})
	m := ComputeSentimentMetrics(bars)
	if m.Pattern != PatternAccumulation {
		t.Errorf("pattern = %q, want %q", m.Pattern, PatternAccumulation)
	}
}

func TestSentimentPowerHourAdjustment(t *testing.T) {
	m := SentimentMetrics{HourOfDay: 15, Pattern: PatternNone}
	res := ScoreSentiment(m)
	if res.Score != 55 {
		t.Errorf("score = %v, want 55 (base + power hour)", res.Score)
	}
}
