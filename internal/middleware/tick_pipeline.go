package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// TickSink is the downstream a flushed tick is handed to.
type TickSink interface {
	PublishTick(ctx context.Context, t *models.Tick) error
}

// TickPipeline sits between the feed client and the tick sink. It validates
// inbound ticks, throttles per symbol, keeps a last-price board for the
// market overview, and buffers ticks when the downstream is unavailable.
// It implements repository.FeedListener.
type TickPipeline struct {
	sink    TickSink
	metrics drepo.Metrics
	log     *logger.Logger

	maxPerSec int
	bufCh     chan *models.Tick
	stopCh    chan struct{}

	mu       sync.Mutex
	started  bool
	lastSeen map[string]time.Time
	board    map[string]float64
}

// PipelineOption configures a TickPipeline.
type PipelineOption func(*TickPipeline)

// WithMaxPerSecond caps accepted ticks per symbol per second.
func WithMaxPerSecond(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxPerSec = n
		}
	}
}

// WithBufferSize sets the buffer used while the downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.Tick, n)
		}
	}
}

func NewTickPipeline(sink TickSink, metrics drepo.Metrics, log *logger.Logger, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:      sink,
		metrics:   metrics,
		log:       log,
		maxPerSec: 20,
		bufCh:     make(chan *models.Tick, 1000),
		stopCh:    make(chan struct{}),
		lastSeen:  make(map[string]time.Time),
		board:     make(map[string]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the background flush loop.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

// Stop halts the flush loop. Buffered ticks are dropped.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

func (p *TickPipeline) flushLoop(ctx context.Context) {
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case t := <-p.bufCh:
			if p.sink == nil {
				continue
			}
			if err := p.sink.PublishTick(ctx, t); err != nil {
				if backoff < 2*time.Second {
					backoff *= 2
				}
				if p.metrics != nil {
					p.metrics.RecordError("tick_flush")
				}
				time.Sleep(backoff)
				// requeue if space; drop otherwise
				select {
				case p.bufCh <- t:
				default:
					if p.metrics != nil {
						p.metrics.RecordError("tick_drop")
					}
				}
				continue
			}
			backoff = 50 * time.Millisecond
		}
	}
}

// OnTick validates, throttles, updates the price board and buffers the
// tick for the sink. Implements repository.FeedListener.
func (p *TickPipeline) OnTick(t *models.Tick) {
	if err := validateTick(t); err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("tick_validate")
		}
		return
	}
	now := time.Now()

	p.mu.Lock()
	if last, ok := p.lastSeen[t.Symbol]; ok && now.Sub(last) < time.Second/time.Duration(p.maxPerSec) {
		p.mu.Unlock()
		return
	}
	p.lastSeen[t.Symbol] = now
	if t.Kind == "trade" && t.Price > 0 {
		p.board[t.Symbol] = t.Price
	}
	p.mu.Unlock()

	select {
	case p.bufCh <- t:
	default:
		if p.metrics != nil {
			p.metrics.RecordError("tick_buffer_full")
		}
	}
}

// OnFeedError logs feed failures. Terminal failures are errors, transient
// drops are warnings. Implements repository.FeedListener.
func (p *TickPipeline) OnFeedError(segment string, err error, terminal bool) {
	if terminal {
		p.log.Error("feed segment terminally failed",
			logger.String("segment", segment),
			logger.Error(err))
		if p.metrics != nil {
			p.metrics.RecordError("feed_terminal")
		}
		return
	}
	p.log.Warn("feed segment dropped",
		logger.String("segment", segment),
		logger.Error(err))
}

// LastPrices snapshots the live price board. Implements usecase.PriceSource.
func (p *TickPipeline) LastPrices() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.board))
	for k, v := range p.board {
		out[k] = v
	}
	return out
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("tick missing symbol")
	}
	switch t.Kind {
	case "trade":
		if t.Price <= 0 {
			return fmt.Errorf("trade tick with non-positive price")
		}
	case "quote":
		if t.BidPrice <= 0 && t.AskPrice <= 0 {
			return fmt.Errorf("quote tick with no prices")
		}
	default:
		return fmt.Errorf("unknown tick kind %q", t.Kind)
	}
	return nil
}
