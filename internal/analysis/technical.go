package analysis

import (
	"context"
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/eodhd"
	"TradePulse/internal/service/marketcache"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/pkg/logger"
)

// MarketData is the slice of the provider client the layers consume.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetDailyBars(ctx context.Context, symbol string, from time.Time) ([]models.Bar, error)
	GetIntradayBars(ctx context.Context, symbol, interval string, from time.Time) ([]models.Bar, error)
	GetIndicator(ctx context.Context, symbol, function string, period int, multiplier float64) ([]models.IndicatorPoint, error)
}

// Indicator periods used by the technical ladder.
const (
	smaFastPeriod = 20
	smaSlowPeriod = 50
	rsiPeriod     = 14
	avgVolumeDays = 20
)

// TechnicalMetrics is everything the technical ladder judges.
type TechnicalMetrics struct {
	Price         float64 `json:"price"`
	SMAFast       float64 `json:"sma_20"`
	SMASlow       float64 `json:"sma_50"`
	RSI           float64 `json:"rsi_14"`
	VolumeRatio   float64 `json:"volume_ratio"`
	DayChangePct  float64 `json:"day_change_pct"`
	RangePosition float64 `json:"range_position"` // close within [low,high], 0..1
}

// Technical scores trend alignment, RSI zones, volume anomaly, day change
// and close position within the day's range.
type Technical struct {
	provider     MarketData
	limiter      *ratelimit.Limiter
	cache        *marketcache.IndicatorCache
	indicatorTTL time.Duration
	quoteTTL     time.Duration
	log          *logger.Logger
}

func NewTechnical(provider MarketData, limiter *ratelimit.Limiter, cache *marketcache.IndicatorCache, indicatorTTL, quoteTTL time.Duration, log *logger.Logger) *Technical {
	return &Technical{
		provider:     provider,
		limiter:      limiter,
		cache:        cache,
		indicatorTTL: indicatorTTL,
		quoteTTL:     quoteTTL,
		log:          log,
	}
}

func (t *Technical) Name() string { return "technical" }

// Reservation assumes every fetch misses the cache: one quote, three
// indicator series and one daily-bar history.
func (t *Technical) Reservation() int {
	return eodhd.CostQuote + 3*eodhd.CostIndicator + eodhd.CostDailyBars
}

func (t *Technical) Analyze(ctx context.Context, symbol string) models.LayerResult {
	return guarded(t.log, t.Name(), symbol, func() (models.LayerResult, error) {
		if symbol == "" {
			return models.LayerResult{}, models.NewValidationError("symbol", "must not be empty")
		}
		if !t.limiter.CheckLimit(t.Reservation()) {
			return models.NeutralLayerResult("rate limit budget exhausted"), nil
		}
		m, err := t.collect(ctx, symbol)
		if err != nil {
			return models.LayerResult{}, err
		}
		return ScoreTechnical(m), nil
	})
}

// ScoreTechnical applies the technical ladder to already-computed metrics.
func ScoreTechnical(m TechnicalMetrics) models.LayerResult {
	ladder := []rung{
		{
			when:   func() bool { return m.Price > m.SMAFast && m.SMAFast > m.SMASlow },
			points: 20,
			reason: "bullish trend: price above SMA20 above SMA50",
		},
		{
			when:   func() bool { return m.Price < m.SMAFast && m.SMAFast < m.SMASlow },
			points: -20,
			reason: "bearish trend: price below SMA20 below SMA50",
		},
		{
			when:   func() bool { return m.RSI > 0 && m.RSI < 30 },
			points: 15,
			reason: fmt.Sprintf("RSI oversold at %.1f", m.RSI),
		},
		{
			when:   func() bool { return m.RSI > 70 },
			points: -15,
			reason: fmt.Sprintf("RSI overbought at %.1f", m.RSI),
		},
		{
			when:   func() bool { return m.RSI >= 50 && m.RSI <= 60 },
			points: 5,
			reason: fmt.Sprintf("RSI mildly bullish at %.1f", m.RSI),
		},
		{
			when:   func() bool { return m.VolumeRatio >= 3 },
			points: 15,
			reason: fmt.Sprintf("very high volume: %.1fx average", m.VolumeRatio),
		},
		{
			when:   func() bool { return m.VolumeRatio >= 2 && m.VolumeRatio < 3 },
			points: 10,
			reason: fmt.Sprintf("high volume: %.1fx average", m.VolumeRatio),
		},
		{
			when:   func() bool { return m.VolumeRatio >= 1.5 && m.VolumeRatio < 2 },
			points: 5,
			reason: fmt.Sprintf("elevated volume: %.1fx average", m.VolumeRatio),
		},
		{
			when:   func() bool { return m.VolumeRatio > 0 && m.VolumeRatio < 0.5 },
			points: -5,
			reason: "volume drying up",
		},
		{
			when:   func() bool { return m.DayChangePct >= 3 },
			points: 10,
			reason: fmt.Sprintf("strong up move: %+.1f%% today", m.DayChangePct),
		},
		{
			when:   func() bool { return m.DayChangePct >= 1 && m.DayChangePct < 3 },
			points: 5,
			reason: fmt.Sprintf("up move: %+.1f%% today", m.DayChangePct),
		},
		{
			when:   func() bool { return m.DayChangePct <= -3 },
			points: -10,
			reason: fmt.Sprintf("strong down move: %.1f%% today", m.DayChangePct),
		},
		{
			when:   func() bool { return m.DayChangePct <= -1 && m.DayChangePct > -3 },
			points: -5,
			reason: fmt.Sprintf("down move: %.1f%% today", m.DayChangePct),
		},
		{
			when:   func() bool { return m.RangePosition >= 0.8 },
			points: 5,
			reason: "closing near the day's high",
		},
		{
			when:   func() bool { return m.RangePosition > 0 && m.RangePosition <= 0.2 },
			points: -5,
			reason: "closing near the day's low",
		},
	}
	score, signals := applyLadder(ladder)
	return models.LayerResult{
		Score:        score,
		Signals:      signals,
		Data:         technicalData(m),
		DataComplete: true,
	}
}

func technicalData(m TechnicalMetrics) map[string]interface{} {
	return map[string]interface{}{
		"price":          m.Price,
		"sma_20":         m.SMAFast,
		"sma_50":         m.SMASlow,
		"rsi_14":         m.RSI,
		"volume_ratio":   m.VolumeRatio,
		"day_change_pct": m.DayChangePct,
		"range_position": m.RangePosition,
	}
}

// collect fetches the quote and indicator inputs, preferring cached
// indicator series and consuming budget only on cache misses.
func (t *Technical) collect(ctx context.Context, symbol string) (TechnicalMetrics, error) {
	var m TechnicalMetrics

	quote, err := t.quote(ctx, symbol)
	if err != nil {
		return m, err
	}
	m.Price = quote.Close
	m.DayChangePct = quote.ChangePercent
	if span := quote.High - quote.Low; span > 0 {
		m.RangePosition = (quote.Close - quote.Low) / span
	}

	m.SMAFast, err = t.latestIndicator(ctx, symbol, eodhd.IndicatorSMA, smaFastPeriod)
	if err != nil {
		return m, err
	}
	m.SMASlow, err = t.latestIndicator(ctx, symbol, eodhd.IndicatorSMA, smaSlowPeriod)
	if err != nil {
		return m, err
	}
	m.RSI, err = t.latestIndicator(ctx, symbol, eodhd.IndicatorRSI, rsiPeriod)
	if err != nil {
		return m, err
	}

	avg, err := t.averageVolume(ctx, symbol)
	if err != nil {
		return m, err
	}
	if avg > 0 {
		m.VolumeRatio = quote.Volume / avg
	}
	return m, nil
}

func (t *Technical) quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if e := t.cache.Get(ctx, symbol, "quote", 0, "rt"); e != nil {
		if q, ok := marketcache.DataAs[*models.Quote](e); ok {
			return q, nil
		}
	}
	q, err := t.provider.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	t.cache.Set(ctx, symbol, "quote", 0, "rt", q, t.quoteTTL, eodhd.CostQuote)
	return q, nil
}

func (t *Technical) latestIndicator(ctx context.Context, symbol, function string, period int) (float64, error) {
	if e := t.cache.Get(ctx, symbol, function, period, "d"); e != nil {
		if points, ok := marketcache.DataAs[[]models.IndicatorPoint](e); ok && len(points) > 0 {
			return points[len(points)-1].Value, nil
		}
	}
	points, err := t.provider.GetIndicator(ctx, symbol, function, period, 0)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("%s(%d) for %s: empty series", function, period, symbol)
	}
	t.cache.Set(ctx, symbol, function, period, "d", points, t.indicatorTTL, eodhd.CostIndicator)
	return points[len(points)-1].Value, nil
}

func (t *Technical) averageVolume(ctx context.Context, symbol string) (float64, error) {
	if e := t.cache.Get(ctx, symbol, "avg_volume", avgVolumeDays, "d"); e != nil {
		if v, ok := marketcache.DataAs[float64](e); ok {
			return v, nil
		}
	}
	from := time.Now().AddDate(0, 0, -avgVolumeDays*2)
	bars, err := t.provider.GetDailyBars(ctx, symbol, from)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if len(bars) > avgVolumeDays {
		bars = bars[len(bars)-avgVolumeDays:]
	}
	var sum float64
	for _, b := range bars {
		sum += b.Volume
	}
	avg := sum / float64(len(bars))
	t.cache.Set(ctx, symbol, "avg_volume", avgVolumeDays, "d", avg, t.indicatorTTL, eodhd.CostDailyBars)
	return avg, nil
}
