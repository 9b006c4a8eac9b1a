package repository

import (
	"context"
	"time"

	"TradePulse/internal/domain/models"
)

// SignalStore is the opaque persistence collaborator. The core depends on
// these operation shapes only, not on a storage engine. Signal history is
// append-only; there is no update or delete path.
type SignalStore interface {
	InsertSignal(ctx context.Context, s *models.Signal) (*models.Signal, error)
	QuerySignals(ctx context.Context, q models.SignalQuery) ([]*models.Signal, int64, error)
	InsertScanRecord(ctx context.Context, r *models.ScanRecord) error
	Analytics(ctx context.Context, market string, since time.Time) (*models.SignalAnalytics, error)

	// Per-user viewed/saved bookkeeping, best-effort from the core's view.
	AppendUserList(ctx context.Context, userID, list, symbol string) error
	RemoveUserList(ctx context.Context, userID, list, symbol string) error

	Health(ctx context.Context) error
	Close() error
}

// SignalEvents publishes change events for downstream subscribers keyed by
// market filter.
type SignalEvents interface {
	PublishSignalCreated(ctx context.Context, s *models.Signal) error
	PublishScanCompleted(ctx context.Context, r *models.ScanRecord) error
	Close() error
}

// CandidateQueue enqueues scan candidates for downstream detailed analysis,
// prioritized by opportunity score.
type CandidateQueue interface {
	EnqueueCandidate(ctx context.Context, c models.ScanCandidate, priority float64) error
	// Depth reports how many candidates are waiting. Best-effort.
	Depth(ctx context.Context) (int64, error)
}

// FeedListener receives classified feed messages. Dispatch is synchronous;
// listeners must not block. terminal means the segment gave up reconnecting.
type FeedListener interface {
	OnTick(t *models.Tick)
	OnFeedError(segment string, err error, terminal bool)
}

// Metrics is the observability sink implemented by pkg/metrics.
type Metrics interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheError()
	RecordAPICall(endpoint string, cost int)
	RecordBudgetUsage(window string, usedPercent float64)
	RecordAnalysisLatency(layer string, seconds float64)
	RecordSignalCreated(market string, strength string)
	RecordFeedReconnect(segment string)
	RecordQueueDepth(depth int)
	RecordError(kind string)
}
