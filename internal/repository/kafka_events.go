package repository

import (
	"context"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	pkgkafka "TradePulse/pkg/kafka"
)

// KafkaSignalEvents publishes signal and scan change events for downstream
// subscribers, keyed by market so consumers can filter by partition key.
// It also serves as the tick pipeline's sink.
type KafkaSignalEvents struct {
	producer    *pkgkafka.Producer
	signalTopic string
	scanTopic   string
	tickTopic   string
}

func NewKafkaSignalEvents(producer *pkgkafka.Producer, signalTopic, scanTopic, tickTopic string) *KafkaSignalEvents {
	return &KafkaSignalEvents{
		producer:    producer,
		signalTopic: signalTopic,
		scanTopic:   scanTopic,
		tickTopic:   tickTopic,
	}
}

var _ drepo.SignalEvents = (*KafkaSignalEvents)(nil)

func (k *KafkaSignalEvents) PublishSignalCreated(ctx context.Context, s *models.Signal) error {
	return k.producer.Publish(ctx, k.signalTopic, []byte(s.Market), map[string]interface{}{
		"event":             "signal.created",
		"id":                s.ID,
		"symbol":            s.Symbol,
		"market":            s.Market,
		"convergence_score": s.ConvergenceScore,
		"strength":          string(s.Strength),
		"entry_price":       s.EntryPrice,
		"created_at":        s.CreatedAt,
	})
}

func (k *KafkaSignalEvents) PublishScanCompleted(ctx context.Context, r *models.ScanRecord) error {
	return k.producer.Publish(ctx, k.scanTopic, []byte(r.Exchange), map[string]interface{}{
		"event":         "scan.completed",
		"exchange":      r.Exchange,
		"scanned_total": r.ScannedTotal,
		"matched_total": r.MatchedTotal,
		"queued_total":  r.QueuedTotal,
		"top_symbols":   r.TopSymbols,
		"completed_at":  r.CompletedAt,
	})
}

// PublishTick forwards a live tick. Implements middleware.TickSink.
func (k *KafkaSignalEvents) PublishTick(ctx context.Context, t *models.Tick) error {
	return k.producer.Publish(ctx, k.tickTopic, []byte(t.Symbol), t)
}

func (k *KafkaSignalEvents) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
