package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

type memSink struct {
	mu    sync.Mutex
	ticks []*models.Tick
}

func (m *memSink) PublishTick(ctx context.Context, t *models.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, t)
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ticks)
}

func TestPipelineUpdatesPriceBoardAndFlushes(t *testing.T) {
	sink := &memSink{}
	p := NewTickPipeline(sink, nil, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	p.OnTick(&models.Tick{Symbol: "AAPL", Kind: "trade", Price: 229.5, Volume: 100, Timestamp: time.Now()})

	deadline := time.Now().Add(time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("flushed %d ticks, want 1", sink.count())
	}
	if got := p.LastPrices()["AAPL"]; got != 229.5 {
		t.Errorf("board price = %v, want 229.5", got)
	}
}

func TestPipelineRejectsMalformedTicks(t *testing.T) {
	p := NewTickPipeline(&memSink{}, nil, logger.Nop())

	p.OnTick(nil)
	p.OnTick(&models.Tick{Kind: "trade", Price: 10})
	p.OnTick(&models.Tick{Symbol: "AAPL", Kind: "trade", Price: 0})
	p.OnTick(&models.Tick{Symbol: "AAPL", Kind: "mystery"})

	if len(p.LastPrices()) != 0 {
		t.Errorf("board = %v, want empty", p.LastPrices())
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	p := NewTickPipeline(&memSink{}, nil, logger.Nop(), WithMaxPerSecond(1))

	p.OnTick(&models.Tick{Symbol: "AAPL", Kind: "trade", Price: 100})
	p.OnTick(&models.Tick{Symbol: "AAPL", Kind: "trade", Price: 101}) // inside the window, dropped
	p.OnTick(&models.Tick{Symbol: "MSFT", Kind: "trade", Price: 400}) // other symbol passes

	prices := p.LastPrices()
	if prices["AAPL"] != 100 {
		t.Errorf("AAPL = %v, want first tick's 100", prices["AAPL"])
	}
	if prices["MSFT"] != 400 {
		t.Errorf("MSFT = %v, want 400", prices["MSFT"])
	}
}
