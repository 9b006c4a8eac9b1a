package usecase

import (
	"context"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// AnalyzeBatch partitions symbols into fixed-size chunks, checks remaining
// budget before each chunk, analyzes a chunk's symbols concurrently, and
// pauses between chunks to respect the rolling minute ceiling. It stops
// early without failing once the budget cannot cover another chunk.
func (c *Coordinator) AnalyzeBatch(ctx context.Context, symbols []string) (*models.BatchResult, error) {
	if len(symbols) == 0 {
		return nil, models.NewValidationError("symbols", "must not be empty")
	}
	start := time.Now()
	minuteBefore, _ := c.limiter.Stats()

	result := &models.BatchResult{
		Results: make([]*models.SymbolAnalysis, 0, len(symbols)),
		Summary: models.BatchSummary{TotalSymbols: len(symbols)},
	}

	for offset := 0; offset < len(symbols); offset += c.chunkSize {
		end := offset + c.chunkSize
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := symbols[offset:end]

		if !c.limiter.CheckLimit(c.reservation() * len(chunk)) {
			result.Summary.StoppedEarly = true
			c.log.Warn("batch stopped early: budget exhausted",
				logger.Int("processed", result.Summary.Completed),
				logger.Int("remaining", len(symbols)-offset))
			break
		}
		if ctx.Err() != nil {
			result.Summary.StoppedEarly = true
			break
		}

		c.analyzeChunk(ctx, chunk, result)

		if end < len(symbols) {
			if delay := c.limiter.OptimalDelay(); delay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(delay):
				}
			}
		}
	}

	minuteAfter, _ := c.limiter.Stats()
	result.Summary.CallsUsed = minuteAfter.Used - minuteBefore.Used
	result.Summary.ElapsedMs = time.Since(start).Milliseconds()
	if c.metrics != nil {
		c.metrics.RecordAnalysisLatency("batch", time.Since(start).Seconds())
	}
	return result, nil
}

// analyzeChunk runs one chunk's symbols concurrently. A symbol's failure is
// counted and excluded from the results, never propagated.
func (c *Coordinator) analyzeChunk(ctx context.Context, chunk []string, result *models.BatchResult) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, symbol := range chunk {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			res, err := c.AnalyzeSymbol(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Summary.Failed++
				c.log.Warn("symbol analysis failed",
					logger.String("symbol", symbol),
					logger.Error(err))
				return
			}
			result.Results = append(result.Results, res)
			result.Summary.Completed++
			if res.Signal != nil {
				result.Summary.SignalsCreated++
			}
		}(symbol)
	}
	wg.Wait()
}
