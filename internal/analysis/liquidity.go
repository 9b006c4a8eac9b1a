package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/eodhd"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/pkg/logger"
)

// Liquidity classes by window dollar volume.
const (
	LiquidityHigh   = "high"
	LiquidityMedium = "medium"
	LiquidityLow    = "low"
)

// Dollar-volume thresholds (USD, per analysis window) for the class split.
const (
	highLiquidityUSD   = 10_000_000
	mediumLiquidityUSD = 1_000_000
)

// LiquidityMetrics is everything the liquidity ladder judges.
type LiquidityMetrics struct {
	SpreadEstimatePct float64 `json:"spread_estimate_pct"`
	VolumePercentile  float64 `json:"volume_percentile"`
	StabilityPct      float64 `json:"stability_pct"`
	SpikeDensity      float64 `json:"spike_density"`
	PriceImpact       float64 `json:"price_impact"`
	DollarVolume      float64 `json:"dollar_volume"`
	Class             string  `json:"class"`
	BarCount          int     `json:"bar_count"`
}

// Liquidity scores tradeability: spread proxy from candle ranges, volume
// percentile, price stability, spike density and a dollar-volume class.
type Liquidity struct {
	provider MarketData
	limiter  *ratelimit.Limiter
	interval string
	log      *logger.Logger
}

func NewLiquidity(provider MarketData, limiter *ratelimit.Limiter, interval string, log *logger.Logger) *Liquidity {
	return &Liquidity{provider: provider, limiter: limiter, interval: interval, log: log}
}

func (l *Liquidity) Name() string { return "liquidity" }

func (l *Liquidity) Reservation() int { return eodhd.CostIntraday }

func (l *Liquidity) Analyze(ctx context.Context, symbol string) models.LayerResult {
	return guarded(l.log, l.Name(), symbol, func() (models.LayerResult, error) {
		if symbol == "" {
			return models.LayerResult{}, models.NewValidationError("symbol", "must not be empty")
		}
		if !l.limiter.CheckLimit(l.Reservation()) {
			return models.NeutralLayerResult("rate limit budget exhausted"), nil
		}
		from := time.Now().Add(-intradayLookback(l.interval))
		bars, err := l.provider.GetIntradayBars(ctx, symbol, l.interval, from)
		if err != nil {
			return models.LayerResult{}, err
		}
		if len(bars) < MinIntradayBars {
			return models.NeutralLayerResult(
				fmt.Sprintf("insufficient data: %d intraday bars, need %d", len(bars), MinIntradayBars)), nil
		}
		return ScoreLiquidity(ComputeLiquidityMetrics(bars)), nil
	})
}

// ComputeLiquidityMetrics derives the ladder inputs from an ascending
// intraday bar window.
func ComputeLiquidityMetrics(bars []models.Bar) LiquidityMetrics {
	m := LiquidityMetrics{BarCount: len(bars)}

	// Median candle range resists the outlier bars a mean would absorb.
	ranges := make([]float64, 0, len(bars))
	var volSum float64
	for _, b := range bars {
		if b.Close > 0 {
			ranges = append(ranges, (b.High-b.Low)/b.Close*100)
		}
		volSum += b.Volume
		m.DollarVolume += b.Close * b.Volume
	}
	m.SpreadEstimatePct = median(ranges) * 0.25
	avgVol := volSum / float64(len(bars))

	last := bars[len(bars)-1]
	below := 0
	for _, b := range bars {
		if b.Volume <= last.Volume {
			below++
		}
	}
	m.VolumePercentile = float64(below) / float64(len(bars)) * 100

	var moveSum float64
	spikes := 0
	var spikeMoves, calmMoves, spikeN, calmN float64
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if prev.Close <= 0 {
			continue
		}
		move := math.Abs(cur.Close-prev.Close) / prev.Close * 100
		moveSum += move
		if cur.Volume > 1.5*avgVol {
			spikes++
			spikeMoves += move
			spikeN++
		} else {
			calmMoves += move
			calmN++
		}
	}
	m.StabilityPct = moveSum / float64(len(bars)-1)
	m.SpikeDensity = float64(spikes) / float64(len(bars)-1)

	// Impact proxy: how much harder price moves when volume spikes.
	if spikeN > 0 && calmN > 0 && calmMoves > 0 {
		m.PriceImpact = (spikeMoves / spikeN) / (calmMoves / calmN)
	}

	switch {
	case m.DollarVolume >= highLiquidityUSD:
		m.Class = LiquidityHigh
	case m.DollarVolume >= mediumLiquidityUSD:
		m.Class = LiquidityMedium
	default:
		m.Class = LiquidityLow
	}
	return m
}

// ScoreLiquidity applies the liquidity ladder to already-computed metrics.
func ScoreLiquidity(m LiquidityMetrics) models.LayerResult {
	ladder := []rung{
		{
			when:   func() bool { return m.SpreadEstimatePct > 0 && m.SpreadEstimatePct < 0.1 },
			points: 15,
			reason: fmt.Sprintf("tight spread estimate: %.3f%%", m.SpreadEstimatePct),
		},
		{
			when:   func() bool { return m.SpreadEstimatePct >= 0.1 && m.SpreadEstimatePct < 0.3 },
			points: 8,
			reason: fmt.Sprintf("moderate spread estimate: %.3f%%", m.SpreadEstimatePct),
		},
		{
			when:   func() bool { return m.SpreadEstimatePct >= 0.75 },
			points: -15,
			reason: fmt.Sprintf("wide spread estimate: %.3f%%", m.SpreadEstimatePct),
		},
		{
			when:   func() bool { return m.VolumePercentile >= 80 },
			points: 10,
			reason: fmt.Sprintf("current volume in top %.0fth percentile", m.VolumePercentile),
		},
		{
			when:   func() bool { return m.VolumePercentile <= 20 },
			points: -10,
			reason: "current volume near the bottom of recent history",
		},
		{
			when:   func() bool { return m.StabilityPct > 0 && m.StabilityPct < 0.15 },
			points: 8,
			reason: "stable minute-to-minute pricing",
		},
		{
			when:   func() bool { return m.StabilityPct > 0.6 },
			points: -8,
			reason: fmt.Sprintf("unstable pricing: %.2f%% average move", m.StabilityPct),
		},
		{
			when:   func() bool { return m.SpikeDensity >= 0.3 },
			points: 5,
			reason: "frequent volume spikes suggest active trading",
		},
		{
			when:   func() bool { return m.PriceImpact >= 3 },
			points: -5,
			reason: fmt.Sprintf("thin book: volume spikes move price %.1fx harder", m.PriceImpact),
		},
		{
			when:   func() bool { return m.Class == LiquidityHigh },
			points: 10,
			reason: fmt.Sprintf("high liquidity: $%.0f window dollar volume", m.DollarVolume),
		},
		{
			when:   func() bool { return m.Class == LiquidityLow },
			points: -15,
			reason: fmt.Sprintf("low liquidity: $%.0f window dollar volume", m.DollarVolume),
		},
	}
	score, signals := applyLadder(ladder)
	return models.LayerResult{
		Score:   score,
		Signals: signals,
		Data: map[string]interface{}{
			"spread_estimate_pct": m.SpreadEstimatePct,
			"volume_percentile":   m.VolumePercentile,
			"stability_pct":       m.StabilityPct,
			"spike_density":       m.SpikeDensity,
			"price_impact":        m.PriceImpact,
			"dollar_volume":       m.DollarVolume,
			"class":               m.Class,
		},
		DataComplete: true,
	}
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
