package models

import "time"

// LayerResult is the outcome of one analysis layer for one symbol.
// Score is always in [0,100]; 50 with an empty signal list is the neutral
// default a layer degrades to on rate exhaustion or internal failure.
type LayerResult struct {
	Score   float64                `json:"score"`
	Signals []string               `json:"signals"`
	Data    map[string]interface{} `json:"data"`
	// DataComplete is false when the layer could not fetch enough real data
	// and returned the neutral default instead of fabricated metrics.
	DataComplete bool `json:"data_complete"`
}

// NeutralLayerResult returns the degraded default for a layer.
func NeutralLayerResult(reason string) LayerResult {
	data := map[string]interface{}{}
	if reason != "" {
		data["unavailable_reason"] = reason
	}
	return LayerResult{Score: 50, Signals: []string{}, Data: data, DataComplete: false}
}

// Strength buckets for a convergence score.
type Strength string

const (
	StrengthWeak       Strength = "WEAK"
	StrengthModerate   Strength = "MODERATE"
	StrengthStrong     Strength = "STRONG"
	StrengthVeryStrong Strength = "VERY_STRONG"
)

// ConvergenceResult is the weighted combination of the three layer scores.
type ConvergenceResult struct {
	Score     int                `json:"score"`
	Strength  Strength           `json:"strength"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// Signal is the persisted record of a qualifying analysis. Append-only.
type Signal struct {
	ID               string                 `json:"id,omitempty"`
	Symbol           string                 `json:"symbol"`
	Market           string                 `json:"market"`
	TechnicalScore   float64                `json:"technical_score"`
	SentimentScore   float64                `json:"sentiment_score"`
	LiquidityScore   float64                `json:"liquidity_score"`
	ConvergenceScore int                    `json:"convergence_score"`
	Strength         Strength               `json:"strength"`
	EntryPrice       float64                `json:"entry_price"`
	StopLoss         float64                `json:"stop_loss"`
	TakeProfit       float64                `json:"take_profit"`
	TechnicalData    map[string]interface{} `json:"technical_data"`
	AnalysisNotes    string                 `json:"analysis_notes"`
	CreatedAt        time.Time              `json:"created_at"`
	ExpiresAt        time.Time              `json:"expires_at"`
}

// SymbolAnalysis is the full per-symbol result returned by the coordinator.
type SymbolAnalysis struct {
	Symbol      string            `json:"symbol"`
	Technical   LayerResult       `json:"technical"`
	Sentiment   LayerResult       `json:"sentiment"`
	Liquidity   LayerResult       `json:"liquidity"`
	Convergence ConvergenceResult `json:"convergence"`
	Signal      *Signal           `json:"signal,omitempty"`
	RateLimited bool              `json:"rate_limited"`
	ElapsedMs   int64             `json:"elapsed_ms"`
	CallsUsed   int               `json:"calls_used"`
	AnalyzedAt  time.Time         `json:"analyzed_at"`
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	TotalSymbols   int   `json:"total_symbols"`
	Completed      int   `json:"completed"`
	Failed         int   `json:"failed"`
	SignalsCreated int   `json:"signals_created"`
	StoppedEarly   bool  `json:"stopped_early"`
	ElapsedMs      int64 `json:"elapsed_ms"`
	CallsUsed      int   `json:"calls_used"`
}

// BatchResult holds per-symbol results plus the summary.
type BatchResult struct {
	Results []*SymbolAnalysis `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

// ScanCandidate is an ephemeral row produced by a market scan.
type ScanCandidate struct {
	Symbol           string   `json:"symbol"`
	Price            float64  `json:"price"`
	Volume           float64  `json:"volume"`
	Change           float64  `json:"change"`
	ChangePercent    float64  `json:"change_percent"`
	DollarVolume     float64  `json:"dollar_volume"`
	OpportunityScore float64  `json:"opportunity_score"`
	Reasons          []string `json:"reasons"`
}

// ScanFilters narrows an exchange-wide scan.
type ScanFilters struct {
	Exchange     string  `json:"exchange"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
	MinVolume    float64 `json:"min_volume"`
	MinChangePct float64 `json:"min_change_pct"`
	Limit        int     `json:"limit"`
}

// ScanRecord is the persisted metadata of one completed scan.
type ScanRecord struct {
	Exchange     string    `json:"exchange"`
	ScannedTotal int       `json:"scanned_total"`
	MatchedTotal int       `json:"matched_total"`
	QueuedTotal  int       `json:"queued_total"`
	TopSymbols   []string  `json:"top_symbols"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ScanResult is returned to the caller even when persistence fails.
type ScanResult struct {
	Candidates  []ScanCandidate `json:"candidates"`
	Record      ScanRecord      `json:"record"`
	RateLimited bool            `json:"rate_limited"`
}

// WindowStats reports one rate-limit accounting window.
type WindowStats struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// UsageStats is the combined rate-limit and cache observability payload.
type UsageStats struct {
	Minute       WindowStats `json:"minute"`
	Day          WindowStats `json:"day"`
	UsagePercent float64     `json:"usage_percent"`
	Approaching  bool        `json:"approaching_limit"`
	CacheHits    int64       `json:"cache_hits"`
	CacheMisses  int64       `json:"cache_misses"`
	CacheErrors  int64       `json:"cache_errors"`
}

// MarketOverview is the lightweight dashboard payload.
type MarketOverview struct {
	Market        string             `json:"market"`
	LastPrices    map[string]float64 `json:"last_prices"`
	RecentSignals []*Signal          `json:"recent_signals"`
	PendingScans  int64              `json:"pending_scans"`
	Usage         UsageStats         `json:"usage"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// SignalQuery filters, sorts and paginates persisted signals.
type SignalQuery struct {
	Symbol     string    `json:"symbol,omitempty"`
	Market     string    `json:"market,omitempty"`
	MinScore   int       `json:"min_score,omitempty"`
	Strength   Strength  `json:"strength,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	SortBy     string    `json:"sort_by,omitempty"` // created_at | convergence_score
	Descending bool      `json:"descending,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
	ActiveOnly bool      `json:"active_only,omitempty"`
}

// SignalAnalytics is the aggregation payload for a market.
type SignalAnalytics struct {
	Market          string  `json:"market"`
	TotalSignals    int64   `json:"total_signals"`
	AvgConvergence  float64 `json:"avg_convergence"`
	StrongOrBetter  int64   `json:"strong_or_better"`
	DistinctSymbols int64   `json:"distinct_symbols"`
}
