package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/eodhd"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/pkg/logger"
	"TradePulse/pkg/util"
)

// MinIntradayBars is the floor below which sentiment refuses to score.
const MinIntradayBars = 12

// recentBars is how many trailing bars count as "recent" for the
// volume-anomaly ratio.
const recentBars = 3

// Intraday price-action patterns the sentiment heuristics recognize.
const (
	PatternAccumulation  = "accumulation"
	PatternDistribution  = "distribution"
	PatternConsolidation = "consolidation"
	PatternNone          = "none"
)

// SentimentMetrics is everything the sentiment ladder judges, computed from
// a recent intraday window.
type SentimentMetrics struct {
	VelocityPctPerHour float64 `json:"velocity_pct_per_hour"`
	VolumeAnomaly      float64 `json:"volume_anomaly"`
	VolatilityPct      float64 `json:"volatility_pct"`
	Pattern            string  `json:"pattern"`
	HourOfDay          int     `json:"hour_of_day"`
	BarCount           int     `json:"bar_count"`
}

// Sentiment scores short-horizon momentum: price velocity, volume anomalies
// with directional confirmation, volatility, and heuristic
// accumulation/distribution detection over a ~2 hour intraday window.
type Sentiment struct {
	provider MarketData
	limiter  *ratelimit.Limiter
	interval string
	log      *logger.Logger
}

func NewSentiment(provider MarketData, limiter *ratelimit.Limiter, interval string, log *logger.Logger) *Sentiment {
	return &Sentiment{provider: provider, limiter: limiter, interval: interval, log: log}
}

func (s *Sentiment) Name() string { return "sentiment" }

func (s *Sentiment) Reservation() int { return eodhd.CostIntraday }

func (s *Sentiment) Analyze(ctx context.Context, symbol string) models.LayerResult {
	return guarded(s.log, s.Name(), symbol, func() (models.LayerResult, error) {
		if symbol == "" {
			return models.LayerResult{}, models.NewValidationError("symbol", "must not be empty")
		}
		if !s.limiter.CheckLimit(s.Reservation()) {
			return models.NeutralLayerResult("rate limit budget exhausted"), nil
		}
		from := time.Now().Add(-intradayLookback(s.interval))
		bars, err := s.provider.GetIntradayBars(ctx, symbol, s.interval, from)
		if err != nil {
			return models.LayerResult{}, err
		}
		if len(bars) < MinIntradayBars {
			return models.NeutralLayerResult(
				fmt.Sprintf("insufficient data: %d intraday bars, need %d", len(bars), MinIntradayBars)), nil
		}
		return ScoreSentiment(ComputeSentimentMetrics(bars)), nil
	})
}

// ComputeSentimentMetrics derives the ladder inputs from an ascending
// intraday bar window.
func ComputeSentimentMetrics(bars []models.Bar) SentimentMetrics {
	first, last := bars[0], bars[len(bars)-1]
	m := SentimentMetrics{
		Pattern:   detectPattern(bars),
		HourOfDay: util.MarketHour(last.Timestamp),
		BarCount:  len(bars),
	}

	hours := last.Timestamp.Sub(first.Timestamp).Hours()
	if hours > 0 && first.Close > 0 {
		m.VelocityPctPerHour = (last.Close - first.Close) / first.Close * 100 / hours
	}

	var volSum, rangeSum float64
	for _, b := range bars {
		volSum += b.Volume
		if b.Close > 0 {
			rangeSum += (b.High - b.Low) / b.Close * 100
		}
	}
	avgVol := volSum / float64(len(bars))
	m.VolatilityPct = rangeSum / float64(len(bars))

	var recentVol float64
	for _, b := range bars[len(bars)-recentBars:] {
		recentVol += b.Volume
	}
	if avgVol > 0 {
		m.VolumeAnomaly = recentVol / float64(recentBars) / avgVol
	}
	return m
}

// ScoreSentiment applies the sentiment ladder to already-computed metrics.
func ScoreSentiment(m SentimentMetrics) models.LayerResult {
	ladder := []rung{
		{
			when:   func() bool { return m.VelocityPctPerHour >= 2 },
			points: 15,
			reason: fmt.Sprintf("strong upward velocity: %+.2f%%/h", m.VelocityPctPerHour),
		},
		{
			when:   func() bool { return m.VelocityPctPerHour >= 0.5 && m.VelocityPctPerHour < 2 },
			points: 8,
			reason: fmt.Sprintf("upward velocity: %+.2f%%/h", m.VelocityPctPerHour),
		},
		{
			when:   func() bool { return m.VelocityPctPerHour <= -2 },
			points: -15,
			reason: fmt.Sprintf("strong downward velocity: %.2f%%/h", m.VelocityPctPerHour),
		},
		{
			when:   func() bool { return m.VelocityPctPerHour <= -0.5 && m.VelocityPctPerHour > -2 },
			points: -8,
			reason: fmt.Sprintf("downward velocity: %.2f%%/h", m.VelocityPctPerHour),
		},
		{
			when:   func() bool { return m.VolumeAnomaly >= 2.5 },
			points: 10,
			reason: fmt.Sprintf("volume surge: %.1fx window average", m.VolumeAnomaly),
		},
		{
			// Confirmation bonus: the surge points the same way the price moves.
			when: func() bool {
				return m.VolumeAnomaly >= 2.5 && math.Abs(m.VelocityPctPerHour) >= 0.5
			},
			points: 5,
			reason: "volume surge confirms price direction",
		},
		{
			when:   func() bool { return m.VolatilityPct > 3 },
			points: -8,
			reason: fmt.Sprintf("choppy tape: %.1f%% average bar range", m.VolatilityPct),
		},
		{
			when:   func() bool { return m.Pattern == PatternAccumulation },
			points: 12,
			reason: "accumulation pattern: higher lows on rising volume",
		},
		{
			when:   func() bool { return m.Pattern == PatternDistribution },
			points: -12,
			reason: "distribution pattern: lower highs on rising volume",
		},
		{
			when:   func() bool { return m.Pattern == PatternConsolidation },
			points: 3,
			reason: "tight consolidation",
		},
		{
			when:   func() bool { return m.HourOfDay == 9 || m.HourOfDay == 10 },
			points: 3,
			reason: "opening session momentum",
		},
		{
			when:   func() bool { return m.HourOfDay == 12 || m.HourOfDay == 13 },
			points: -3,
			reason: "lunch-hour lull",
		},
		{
			when:   func() bool { return m.HourOfDay == 15 },
			points: 5,
			reason: "power hour",
		},
	}
	score, signals := applyLadder(ladder)
	return models.LayerResult{
		Score:   score,
		Signals: signals,
		Data: map[string]interface{}{
			"velocity_pct_per_hour": m.VelocityPctPerHour,
			"volume_anomaly":        m.VolumeAnomaly,
			"volatility_pct":        m.VolatilityPct,
			"pattern":               m.Pattern,
			"hour_of_day":           m.HourOfDay,
			"bar_count":             m.BarCount,
		},
		DataComplete: true,
	}
}

// detectPattern looks for accumulation (higher lows, rising closes, volume
// building), distribution (lower highs, volume building) or consolidation
// (narrow total range) in the window's back half.
func detectPattern(bars []models.Bar) string {
	if len(bars) < 6 {
		return PatternNone
	}
	half := bars[len(bars)/2:]

	higherLows, lowerHighs := true, true
	for i := 1; i < len(half); i++ {
		if half[i].Low < half[i-1].Low {
			higherLows = false
		}
		if half[i].High > half[i-1].High {
			lowerHighs = false
		}
	}

	var frontVol, backVol float64
	mid := len(bars) / 2
	for i, b := range bars {
		if i < mid {
			frontVol += b.Volume
		} else {
			backVol += b.Volume
		}
	}
	volumeBuilding := backVol > frontVol

	switch {
	case higherLows && volumeBuilding:
		return PatternAccumulation
	case lowerHighs && volumeBuilding:
		return PatternDistribution
	}

	lo, hi := half[0].Low, half[0].High
	for _, b := range half {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.High)
	}
	if lo > 0 && (hi-lo)/lo*100 < 0.5 {
		return PatternConsolidation
	}
	return PatternNone
}
