package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TradePulse/internal/analysis"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/service/marketcache"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/internal/service/scoring"
	"TradePulse/pkg/logger"
)

// Stop-loss / take-profit bands, percent of entry price.
const (
	baseStopPct = 2.0
	baseTakePct = 4.0
	minStopPct  = 1.0
	maxStopPct  = 8.0
	minTakePct  = 2.0
	maxTakePct  = 16.0
)

// BulkProvider is the slice of the market data client the scan pipeline uses.
type BulkProvider interface {
	GetBulkLastDay(ctx context.Context, exchange string, date time.Time) ([]models.BulkTicker, error)
}

// PriceSource exposes last-seen live prices, fed by the tick pipeline.
type PriceSource interface {
	LastPrices() map[string]float64
}

// Coordinator orchestrates per-symbol and batch analysis and the market-wide
// scan pipeline. Per-symbol failures degrade, they never abort a batch.
type Coordinator struct {
	technical analysis.Layer
	sentiment analysis.Layer
	liquidity analysis.Layer
	scorer    *scoring.Service
	limiter   *ratelimit.Limiter
	cache     *marketcache.IndicatorCache
	bulk      BulkProvider
	store     drepo.SignalStore
	events    drepo.SignalEvents
	queue     drepo.CandidateQueue
	prices    PriceSource
	metrics   drepo.Metrics
	log       *logger.Logger

	market          string
	chunkSize       int
	signalThreshold int
	signalTTL       time.Duration
}

// Config carries the coordinator's tunables.
type Config struct {
	Market          string
	ChunkSize       int
	SignalThreshold int
	SignalTTL       time.Duration
}

func NewCoordinator(
	technical, sentiment, liquidity analysis.Layer,
	scorer *scoring.Service,
	limiter *ratelimit.Limiter,
	cache *marketcache.IndicatorCache,
	bulk BulkProvider,
	store drepo.SignalStore,
	events drepo.SignalEvents,
	queue drepo.CandidateQueue,
	prices PriceSource,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg Config,
) *Coordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10
	}
	if cfg.SignalThreshold <= 0 {
		cfg.SignalThreshold = 70
	}
	return &Coordinator{
		technical: technical,
		sentiment: sentiment,
		liquidity: liquidity,
		scorer:    scorer,
		limiter:   limiter,
		cache:     cache,
		bulk:      bulk,
		store:     store,
		events:    events,
		queue:     queue,
		prices:    prices,
		metrics:   metrics,
		log:       log,

		market:          cfg.Market,
		chunkSize:       cfg.ChunkSize,
		signalThreshold: cfg.SignalThreshold,
		signalTTL:       cfg.SignalTTL,
	}
}

// reservation is the conservative worst-case budget one symbol may spend.
func (c *Coordinator) reservation() int {
	return c.technical.Reservation() + c.sentiment.Reservation() + c.liquidity.Reservation()
}

// AnalyzeSymbol reserves a worst-case budget, runs the three layers
// concurrently, computes convergence and persists a Signal when the score
// crosses the threshold. Budget exhaustion degrades to a neutral result,
// it is not an error.
func (c *Coordinator) AnalyzeSymbol(ctx context.Context, symbol string) (*models.SymbolAnalysis, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, models.NewValidationError("symbol", "must not be empty")
	}
	start := time.Now()

	if !c.limiter.CheckLimit(c.reservation()) {
		return c.rateLimitedResult(symbol, start), nil
	}

	minuteBefore, _ := c.limiter.Stats()

	var tech, sent, liq models.LayerResult
	done := make(chan struct{}, 3)
	go func() { tech = c.technical.Analyze(ctx, symbol); done <- struct{}{} }()
	go func() { sent = c.sentiment.Analyze(ctx, symbol); done <- struct{}{} }()
	go func() { liq = c.liquidity.Analyze(ctx, symbol); done <- struct{}{} }()
	for i := 0; i < 3; i++ {
		<-done
	}

	conv, err := c.scorer.CalculateConvergence(tech.Score, sent.Score, liq.Score)
	if err != nil {
		return nil, fmt.Errorf("convergence for %s: %w", symbol, err)
	}

	result := &models.SymbolAnalysis{
		Symbol:      symbol,
		Technical:   tech,
		Sentiment:   sent,
		Liquidity:   liq,
		Convergence: *conv,
		AnalyzedAt:  start,
	}

	if conv.Score >= c.signalThreshold {
		signal, err := c.persistSignal(ctx, result)
		if err != nil {
			return nil, err
		}
		result.Signal = signal
	}

	minuteAfter, _ := c.limiter.Stats()
	result.CallsUsed = minuteAfter.Used - minuteBefore.Used
	result.ElapsedMs = time.Since(start).Milliseconds()

	if c.metrics != nil {
		c.metrics.RecordAnalysisLatency("symbol", time.Since(start).Seconds())
		c.metrics.RecordBudgetUsage("minute", c.limiter.UsagePercent())
	}
	return result, nil
}

func (c *Coordinator) rateLimitedResult(symbol string, start time.Time) *models.SymbolAnalysis {
	neutral := models.NeutralLayerResult("rate limit budget exhausted")
	conv, _ := c.scorer.CalculateConvergence(neutral.Score, neutral.Score, neutral.Score)
	return &models.SymbolAnalysis{
		Symbol:      symbol,
		Technical:   neutral,
		Sentiment:   neutral,
		Liquidity:   neutral,
		Convergence: *conv,
		RateLimited: true,
		ElapsedMs:   time.Since(start).Milliseconds(),
		AnalyzedAt:  start,
	}
}

// persistSignal derives trade levels and writes the Signal. The insert is the
// direct write path: its failure surfaces. The change event is best-effort.
// Without a real entry price (technical layer degraded and no live tick
// seen) nothing is written: a trade record with zero levels is worse than
// no record.
func (c *Coordinator) persistSignal(ctx context.Context, a *models.SymbolAnalysis) (*models.Signal, error) {
	entry := dataFloat(a.Technical.Data, "price")
	if entry <= 0 && c.prices != nil {
		entry = c.prices.LastPrices()[a.Symbol]
	}
	if entry <= 0 {
		c.log.Warn("signal not persisted: no entry price",
			logger.String("symbol", a.Symbol),
			logger.Int("convergence", a.Convergence.Score))
		return nil, nil
	}
	stopPct, takePct := tradeBands(
		dataFloat(a.Sentiment.Data, "volatility_pct"),
		dataString(a.Liquidity.Data, "class"),
	)

	now := time.Now()
	signal := &models.Signal{
		Symbol:           a.Symbol,
		Market:           c.market,
		TechnicalScore:   a.Technical.Score,
		SentimentScore:   a.Sentiment.Score,
		LiquidityScore:   a.Liquidity.Score,
		ConvergenceScore: a.Convergence.Score,
		Strength:         a.Convergence.Strength,
		EntryPrice:       entry,
		StopLoss:         entry * (1 - stopPct/100),
		TakeProfit:       entry * (1 + takePct/100),
		TechnicalData:    a.Technical.Data,
		AnalysisNotes:    collectNotes(a),
		CreatedAt:        now,
		ExpiresAt:        now.Add(c.signalTTL),
	}

	created, err := c.store.InsertSignal(ctx, signal)
	if err != nil {
		return nil, &models.DatabaseError{Op: "insert signal", Err: err}
	}
	if c.metrics != nil {
		c.metrics.RecordSignalCreated(c.market, string(created.Strength))
	}
	if c.events != nil {
		if err := c.events.PublishSignalCreated(ctx, created); err != nil {
			c.log.Warn("signal event publish failed",
				logger.String("symbol", created.Symbol),
				logger.Error(err))
		}
	}
	return created, nil
}

// tradeBands scales the stop/take percentages by recent volatility and
// down-weights the take for lower liquidity classes, each clamped.
func tradeBands(volatilityPct float64, liquidityClass string) (stopPct, takePct float64) {
	factor := volatilityPct / 1.5
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 2 {
		factor = 2
	}
	stopPct = baseStopPct * factor
	takePct = baseTakePct * factor

	switch liquidityClass {
	case analysis.LiquidityMedium:
		takePct *= 0.8
	case analysis.LiquidityLow:
		takePct *= 0.6
		stopPct *= 1.2
	}

	stopPct = clampF(stopPct, minStopPct, maxStopPct)
	takePct = clampF(takePct, minTakePct, maxTakePct)
	return stopPct, takePct
}

func collectNotes(a *models.SymbolAnalysis) string {
	var notes []string
	notes = append(notes, a.Technical.Signals...)
	notes = append(notes, a.Sentiment.Signals...)
	notes = append(notes, a.Liquidity.Signals...)
	return strings.Join(notes, "; ")
}

func dataFloat(data map[string]interface{}, key string) float64 {
	if v, ok := data[key].(float64); ok {
		return v
	}
	return 0
}

func dataString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
