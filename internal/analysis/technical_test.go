package analysis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/marketcache"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/pkg/logger"
)

// fakeProvider scripts provider responses and counts calls.
type fakeProvider struct {
	quote      *models.Quote
	daily      []models.Bar
	intraday   []models.Bar
	indicators map[string][]models.IndicatorPoint // keyed "function/period"
	err        error
	calls      int
}

func (f *fakeProvider) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func (f *fakeProvider) GetDailyBars(ctx context.Context, symbol string, from time.Time) ([]models.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.daily, nil
}

func (f *fakeProvider) GetIntradayBars(ctx context.Context, symbol, interval string, from time.Time) ([]models.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.intraday, nil
}

func (f *fakeProvider) GetIndicator(ctx context.Context, symbol, function string, period int, multiplier float64) ([]models.IndicatorPoint, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.indicators[fmt.Sprintf("%s/%d", function, period)], nil
}

func TestTechnicalLadderBullishScenarioClampsAtHundred(t *testing.T) {
	m := TechnicalMetrics{
		Price:         110,
		SMAFast:       105,
		SMASlow:       100,
		RSI:           25,
		VolumeRatio:   3,
		DayChangePct:  4,
		RangePosition: 0.5,
	}
	res := ScoreTechnical(m)
	if res.Score != 100 {
		t.Errorf("score = %v, want 100 (clamped)", res.Score)
	}
	wantReasons := []string{"bullish trend", "oversold", "very high volume", "strong up move"}
	for _, want := range wantReasons {
		found := false
		for _, s := range res.Signals {
			if strings.Contains(s, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing signal %q in %v", want, res.Signals)
		}
	}
	if len(res.Signals) != 4 {
		t.Errorf("signals = %v, want exactly 4", res.Signals)
	}
	if !res.DataComplete {
		t.Error("DataComplete should be true for a real scoring pass")
	}
}

func TestTechnicalLadderBearishFloorsAtZero(t *testing.T) {
	m := TechnicalMetrics{
		Price:         90,
		SMAFast:       95,
		SMASlow:       100,
		RSI:           85,
		VolumeRatio:   0.3,
		DayChangePct:  -5,
		RangePosition: 0.05,
	}
	res := ScoreTechnical(m)
	// 50 -20 -15 -5 -10 -5 = -5, clamped.
	if res.Score != 0 {
		t.Errorf("score = %v, want 0", res.Score)
	}
}

func TestTechnicalNeutralWhenBudgetDenied(t *testing.T) {
	provider := &fakeProvider{}
	limiter := ratelimit.New(5, 10) // below the worst-case reservation
	cache := marketcache.New()
	layer := NewTechnical(provider, limiter, cache, time.Minute, time.Minute, logger.Nop())

	res := layer.Analyze(context.Background(), "AAPL")
	if res.Score != 50 || len(res.Signals) != 0 {
		t.Errorf("res = %+v, want neutral default", res)
	}
	if res.DataComplete {
		t.Error("neutral result must report incomplete data")
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times despite denied budget", provider.calls)
	}
}

func TestTechnicalProviderErrorDegradesToNeutral(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("connection reset")}
	limiter := ratelimit.New(60, 1000)
	cache := marketcache.New()
	layer := NewTechnical(provider, limiter, cache, time.Minute, time.Minute, logger.Nop())

	res := layer.Analyze(context.Background(), "AAPL")
	if res.Score != 50 || res.DataComplete {
		t.Errorf("res = %+v, want neutral default", res)
	}
}

func TestTechnicalUsesCachedIndicators(t *testing.T) {
	provider := &fakeProvider{
		quote: &models.Quote{Symbol: "AAPL", Close: 110, High: 112, Low: 108, Volume: 3_000_000, ChangePercent: 1.2},
	}
	limiter := ratelimit.New(60, 1000)
	cache := marketcache.New()
	ctx := context.Background()

	cache.Set(ctx, "AAPL", "sma", 20, "d", []models.IndicatorPoint{{Value: 105}}, time.Minute, 5)
	cache.Set(ctx, "AAPL", "sma", 50, "d", []models.IndicatorPoint{{Value: 100}}, time.Minute, 5)
	cache.Set(ctx, "AAPL", "rsi", 14, "d", []models.IndicatorPoint{{Value: 55}}, time.Minute, 5)
	cache.Set(ctx, "AAPL", "avg_volume", 20, "d", float64(1_000_000), time.Minute, 1)

	layer := NewTechnical(provider, limiter, cache, time.Minute, time.Minute, logger.Nop())
	res := layer.Analyze(ctx, "AAPL")

	// Only the quote should have hit the provider.
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
	if !res.DataComplete {
		t.Errorf("res = %+v", res)
	}
	if res.Data["volume_ratio"].(float64) != 3 {
		t.Errorf("volume_ratio = %v, want 3", res.Data["volume_ratio"])
	}
}

func TestTechnicalEmptySymbolIsNeutralNotPanic(t *testing.T) {
	layer := NewTechnical(&fakeProvider{}, ratelimit.New(60, 1000), marketcache.New(), time.Minute, time.Minute, logger.Nop())
	res := layer.Analyze(context.Background(), "")
	if res.Score != 50 || res.DataComplete {
		t.Errorf("res = %+v, want neutral", res)
	}
}
