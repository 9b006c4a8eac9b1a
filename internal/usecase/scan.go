package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"TradePulse/internal/analysis"
	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/eodhd"
	"TradePulse/pkg/logger"
	"TradePulse/pkg/util"
)

const defaultScanLimit = 20

// Opportunity-score component weights. Each component is capped before
// weighting so no single dimension dominates.
const (
	volumeRatioCap  = 3.0
	momentumCapPct  = 10.0
	volumeWeight    = 35.0
	momentumWeight  = 40.0
	liquidityWeight = 25.0
)

// ScanMarket fetches one exchange-wide end-of-day dump, filters it, ranks
// candidates by opportunity score and queues the top ones for detailed
// analysis. Persistence failures are logged and swallowed; the candidate
// list is still returned.
func (c *Coordinator) ScanMarket(ctx context.Context, filters models.ScanFilters) (*models.ScanResult, error) {
	if filters.Exchange == "" {
		return nil, models.NewValidationError("exchange", "must not be empty")
	}
	if filters.Limit <= 0 {
		filters.Limit = defaultScanLimit
	}
	started := time.Now()

	if !c.limiter.CheckLimit(eodhd.CostBulkEOD) {
		return &models.ScanResult{RateLimited: true}, nil
	}

	// On non-trading days pin the dump to the last session so the scan
	// record names the date it actually covered.
	var bulkDate time.Time
	if !util.IsTradingDay(started) {
		bulkDate = util.PreviousTradingDay(started)
	}

	rows, err := c.bulk.GetBulkLastDay(ctx, filters.Exchange, bulkDate)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", filters.Exchange, err)
	}

	candidates := make([]models.ScanCandidate, 0, 64)
	for _, row := range rows {
		if !passesFilters(row, filters) {
			continue
		}
		candidates = append(candidates, scoreCandidate(row))
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].OpportunityScore > candidates[j].OpportunityScore
	})
	if len(candidates) > filters.Limit {
		candidates = candidates[:filters.Limit]
	}

	record := models.ScanRecord{
		Exchange:     filters.Exchange,
		ScannedTotal: len(rows),
		MatchedTotal: len(candidates),
		StartedAt:    started,
		CompletedAt:  time.Now(),
	}
	for _, cand := range candidates {
		record.TopSymbols = append(record.TopSymbols, cand.Symbol)
	}

	record.QueuedTotal = c.enqueueCandidates(ctx, candidates)

	// Best-effort bookkeeping: a scan is still useful when the store is down.
	if c.store != nil {
		if err := c.store.InsertScanRecord(ctx, &record); err != nil {
			c.log.Warn("scan record insert failed",
				logger.String("exchange", filters.Exchange),
				logger.Error(err))
		}
	}
	if c.events != nil {
		if err := c.events.PublishScanCompleted(ctx, &record); err != nil {
			c.log.Warn("scan event publish failed",
				logger.String("exchange", filters.Exchange),
				logger.Error(err))
		}
	}
	return &models.ScanResult{Candidates: candidates, Record: record}, nil
}

func (c *Coordinator) enqueueCandidates(ctx context.Context, candidates []models.ScanCandidate) int {
	if c.queue == nil {
		return 0
	}
	queued := 0
	for _, cand := range candidates {
		priority := clampF(cand.OpportunityScore, 0, 100)
		if err := c.queue.EnqueueCandidate(ctx, cand, priority); err != nil {
			c.log.Warn("candidate enqueue failed",
				logger.String("symbol", cand.Symbol),
				logger.Error(err))
			continue
		}
		queued++
	}
	if c.metrics != nil {
		c.metrics.RecordQueueDepth(queued)
	}
	return queued
}

func passesFilters(row models.BulkTicker, f models.ScanFilters) bool {
	if row.Close <= 0 || row.Volume <= 0 {
		return false
	}
	if f.MinPrice > 0 && row.Close < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && row.Close > f.MaxPrice {
		return false
	}
	if f.MinVolume > 0 && row.Volume < f.MinVolume {
		return false
	}
	if f.MinChangePct > 0 && math.Abs(row.ChangePct()) < f.MinChangePct {
		return false
	}
	return true
}

// scoreCandidate computes the opportunity score: a weighted sum of capped
// volume ratio, momentum magnitude and a dollar-volume liquidity bucket.
func scoreCandidate(row models.BulkTicker) models.ScanCandidate {
	changePct := row.ChangePct()
	cand := models.ScanCandidate{
		Symbol:        row.Symbol,
		Price:         row.Close,
		Volume:        row.Volume,
		Change:        row.Close - row.PreviousClose,
		ChangePercent: changePct,
		DollarVolume:  row.DollarVolume(),
	}

	volumeRatio := 1.0
	if row.AvgVolume > 0 {
		volumeRatio = row.Volume / row.AvgVolume
	}
	cappedRatio := math.Min(volumeRatio, volumeRatioCap)
	cappedMomentum := math.Min(math.Abs(changePct), momentumCapPct)

	var liquidityPts float64
	switch {
	case cand.DollarVolume >= 50_000_000:
		liquidityPts = liquidityWeight
		cand.Reasons = append(cand.Reasons, analysis.LiquidityHigh+" dollar volume")
	case cand.DollarVolume >= 5_000_000:
		liquidityPts = liquidityWeight * 0.6
	default:
		liquidityPts = liquidityWeight * 0.2
	}

	if volumeRatio >= 2 {
		cand.Reasons = append(cand.Reasons, fmt.Sprintf("volume %.1fx average", volumeRatio))
	}
	if math.Abs(changePct) >= 3 {
		cand.Reasons = append(cand.Reasons, fmt.Sprintf("moved %+.1f%%", changePct))
	}

	cand.OpportunityScore = math.Round(cappedRatio/volumeRatioCap*volumeWeight +
		cappedMomentum/momentumCapPct*momentumWeight +
		liquidityPts)
	return cand
}
