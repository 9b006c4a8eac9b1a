package usecase

import (
	"context"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
	"TradePulse/pkg/queue"
)

// SymbolAnalyzer runs the full three-layer analysis for one symbol.
type SymbolAnalyzer interface {
	AnalyzeSymbol(ctx context.Context, symbol string) (*models.SymbolAnalysis, error)
}

// CandidateAnalysisJob drains the scan-candidate queue: each message is a
// candidate that passed the bulk screen and earns a full per-symbol
// analysis. Rate-limited runs are not errors; the candidate is simply
// skipped until the next scan re-queues it.
type CandidateAnalysisJob struct {
	analyzer SymbolAnalyzer
	log      *logger.Logger
}

func NewCandidateAnalysisJob(analyzer SymbolAnalyzer, log *logger.Logger) *CandidateAnalysisJob {
	return &CandidateAnalysisJob{analyzer: analyzer, log: log}
}

func (j *CandidateAnalysisJob) Name() string { return "candidate analysis" }

func (j *CandidateAnalysisJob) Type() string { return "scan_candidate" }

func (j *CandidateAnalysisJob) Handle(ctx context.Context, payload interface{}) error {
	cand, err := queue.ParsePayload[models.ScanCandidate](payload)
	if err != nil {
		return err
	}

	res, err := j.analyzer.AnalyzeSymbol(ctx, cand.Symbol)
	if err != nil {
		return err
	}

	if res.RateLimited {
		j.log.Warn("candidate analysis deferred, budget exhausted",
			logger.String("symbol", cand.Symbol))
		return nil
	}

	j.log.Info("candidate analyzed",
		logger.String("symbol", cand.Symbol),
		logger.Int("convergence", res.Convergence.Score),
		logger.String("strength", string(res.Convergence.Strength)),
		logger.Float64("opportunity", cand.OpportunityScore))
	return nil
}

var _ queue.Job = (*CandidateAnalysisJob)(nil)
