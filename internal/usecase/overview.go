package usecase

import (
	"context"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/scoring"
	"TradePulse/pkg/logger"
)

// Health reports whether the signal store is reachable. A disabled
// store is healthy by definition.
func (c *Coordinator) Health(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Health(ctx)
}

// GetAPIUsageStats reports the rate-limit windows and cache counters.
func (c *Coordinator) GetAPIUsageStats() *models.UsageStats {
	minute, day := c.limiter.Stats()
	stats := &models.UsageStats{
		Minute:       minute,
		Day:          day,
		UsagePercent: c.limiter.UsagePercent(),
		Approaching:  c.limiter.IsApproachingLimit(),
	}
	if c.cache != nil {
		cs := c.cache.Stats()
		stats.CacheHits = cs.Hits
		stats.CacheMisses = cs.Misses
		stats.CacheErrors = cs.Errors
	}
	return stats
}

// GetMarketOverview assembles the dashboard payload: live prices from the
// tick pipeline, recent signals, and usage stats. A store failure degrades
// to an empty signal list rather than failing the whole overview.
func (c *Coordinator) GetMarketOverview(ctx context.Context, limit int) (*models.MarketOverview, error) {
	if limit <= 0 {
		limit = 10
	}
	overview := &models.MarketOverview{
		Market:      c.market,
		Usage:       *c.GetAPIUsageStats(),
		GeneratedAt: time.Now(),
	}
	if c.prices != nil {
		overview.LastPrices = c.prices.LastPrices()
	}
	if c.queue != nil {
		if depth, err := c.queue.Depth(ctx); err != nil {
			c.log.Warn("overview queue depth failed", logger.Error(err))
		} else {
			overview.PendingScans = depth
		}
	}
	if c.store != nil {
		signals, _, err := c.store.QuerySignals(ctx, models.SignalQuery{
			Market:     c.market,
			SortBy:     "created_at",
			Descending: true,
			Limit:      limit,
			ActiveOnly: true,
		})
		if err != nil {
			c.log.Warn("overview signal query failed", logger.Error(err))
		} else {
			overview.RecentSignals = signals
		}
	}
	return overview, nil
}

// QuerySignals proxies filtered/sorted/paginated signal reads.
func (c *Coordinator) QuerySignals(ctx context.Context, q models.SignalQuery) ([]*models.Signal, int64, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	signals, total, err := c.store.QuerySignals(ctx, q)
	if err != nil {
		return nil, 0, &models.DatabaseError{Op: "query signals", Err: err}
	}
	return signals, total, nil
}

// SignalAnalytics proxies the aggregation query for a market.
func (c *Coordinator) SignalAnalytics(ctx context.Context, market string, since time.Time) (*models.SignalAnalytics, error) {
	if market == "" {
		market = c.market
	}
	out, err := c.store.Analytics(ctx, market, since)
	if err != nil {
		return nil, &models.DatabaseError{Op: "signal analytics", Err: err}
	}
	return out, nil
}

// ToggleUserList appends or removes a symbol on a per-user viewed/saved
// list. Best-effort: failures are reported but carry no retry semantics.
func (c *Coordinator) ToggleUserList(ctx context.Context, userID, list, symbol string, add bool) error {
	if userID == "" || symbol == "" {
		return models.NewValidationError("user_list", "user id and symbol required")
	}
	var err error
	if add {
		err = c.store.AppendUserList(ctx, userID, list, symbol)
	} else {
		err = c.store.RemoveUserList(ctx, userID, list, symbol)
	}
	if err != nil {
		c.log.Warn("user list toggle failed",
			logger.String("user", userID),
			logger.String("list", list),
			logger.Error(err))
		return &models.DatabaseError{Op: "toggle user list", Err: err}
	}
	return nil
}

// UpdateWeights swaps the scoring weights; invalid sets leave priors intact.
func (c *Coordinator) UpdateWeights(w scoring.Weights) error {
	return c.scorer.UpdateWeights(w)
}

// Weights returns the active scoring weights.
func (c *Coordinator) Weights() scoring.Weights {
	return c.scorer.Weights()
}
