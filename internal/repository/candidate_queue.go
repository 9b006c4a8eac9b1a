package repository

import (
	"context"
	"fmt"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/queue"
)

// MsgTypeScanCandidate is the queue message type carrying one scan
// candidate for detailed analysis.
const MsgTypeScanCandidate = "scan_candidate"

// RedisCandidateQueue pushes scan candidates onto the priority lane of the
// Redis queue, scored by opportunity so the strongest movers are analyzed
// first.
type RedisCandidateQueue struct {
	q *queue.RedisQueue
}

var _ drepo.CandidateQueue = (*RedisCandidateQueue)(nil)

// NewRedisCandidateQueue wraps an already started Redis queue.
func NewRedisCandidateQueue(q *queue.RedisQueue) *RedisCandidateQueue {
	return &RedisCandidateQueue{q: q}
}

// EnqueueCandidate publishes the candidate with its opportunity score as
// the priority.
func (c *RedisCandidateQueue) EnqueueCandidate(ctx context.Context, cand models.ScanCandidate, priority float64) error {
	if err := c.q.EnqueueWithPriority(ctx, MsgTypeScanCandidate, cand, priority); err != nil {
		return fmt.Errorf("enqueue candidate %s: %w", cand.Symbol, err)
	}
	return nil
}

// Depth reports the number of candidates waiting for analysis.
func (c *RedisCandidateQueue) Depth(ctx context.Context) (int64, error) {
	return c.q.PriorityDepth(ctx)
}
