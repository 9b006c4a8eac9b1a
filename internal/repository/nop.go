package repository

import (
	"context"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// NopSignalEvents discards events. Used when Kafka is disabled; the core
// treats event publication as best-effort either way.
type NopSignalEvents struct{}

func (NopSignalEvents) PublishSignalCreated(context.Context, *models.Signal) error { return nil }

func (NopSignalEvents) PublishScanCompleted(context.Context, *models.ScanRecord) error { return nil }

func (NopSignalEvents) Close() error { return nil }

var _ drepo.SignalEvents = NopSignalEvents{}

// NopCandidateQueue discards candidates. Used when Redis is disabled; scan
// results are still returned to the caller, nothing is queued for
// follow-up analysis.
type NopCandidateQueue struct{}

func (NopCandidateQueue) EnqueueCandidate(context.Context, models.ScanCandidate, float64) error {
	return nil
}

func (NopCandidateQueue) Depth(context.Context) (int64, error) { return 0, nil }

var _ drepo.CandidateQueue = NopCandidateQueue{}
