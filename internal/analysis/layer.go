package analysis

import (
	"context"
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
	"TradePulse/pkg/util"
)

// baseScore is the neutral starting point every ladder adjusts from.
const baseScore = 50.0

// intradayLookback sizes the fetch window so enough bars can arrive even
// on coarse intervals, with a 3 hour floor.
func intradayLookback(interval string) time.Duration {
	floor := 3 * time.Hour
	d, ok := util.IntervalDuration(interval)
	if !ok {
		return floor
	}
	if w := time.Duration(2*MinIntradayBars) * d; w > floor {
		return w
	}
	return floor
}

// Layer is one independent scorer over market data.
type Layer interface {
	Name() string
	// Reservation is the worst-case call budget one Analyze may spend.
	Reservation() int
	Analyze(ctx context.Context, symbol string) models.LayerResult
}

// rung is one row of a scoring ladder: a predicate over the metrics computed
// for this call, the bounded score delta it applies, and the human-readable
// reason recorded when it fires. Ladders are ordered data, not code.
type rung struct {
	when   func() bool
	points float64
	reason string
}

// applyLadder walks the rungs in order, summing the deltas of those that
// fire, and returns the clamped score plus the fired reasons.
func applyLadder(rungs []rung) (float64, []string) {
	score := baseScore
	signals := make([]string, 0, len(rungs))
	for _, r := range rungs {
		if r.when() {
			score += r.points
			signals = append(signals, r.reason)
		}
	}
	return clamp(score, 0, 100), signals
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// guarded runs one layer's scoring function, converting panics and errors
// into the neutral default so a single symbol can never abort a batch.
func guarded(log *logger.Logger, layer, symbol string, fn func() (models.LayerResult, error)) (result models.LayerResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis layer panicked",
				logger.String("layer", layer),
				logger.String("symbol", symbol),
				logger.Any("panic", r))
			result = models.NeutralLayerResult(fmt.Sprintf("%s layer failed", layer))
		}
	}()
	res, err := fn()
	if err != nil {
		log.Warn("analysis layer degraded to neutral",
			logger.String("layer", layer),
			logger.String("symbol", symbol),
			logger.Error(err))
		return models.NeutralLayerResult(err.Error())
	}
	return res
}
