package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/ratelimit"
)

// stubBulk returns a scripted exchange dump.
type stubBulk struct {
	rows []models.BulkTicker
	err  error
}

func (s *stubBulk) GetBulkLastDay(ctx context.Context, exchange string, date time.Time) ([]models.BulkTicker, error) {
	return s.rows, s.err
}

func bulkRow(symbol string, close, prev, volume, avgVolume float64) models.BulkTicker {
	return models.BulkTicker{
		Symbol: symbol, Exchange: "US",
		Close: close, PreviousClose: prev,
		Volume: volume, AvgVolume: avgVolume,
	}
}

func scanCoordinator(t *testing.T, limiter *ratelimit.Limiter, store *memStore, bulk BulkProvider, queue *memQueue) *Coordinator {
	t.Helper()
	coord := newTestCoordinator(t, limiter, store, [3]float64{50, 50, 50})
	coord.bulk = bulk
	if queue != nil {
		coord.queue = queue
	}
	return coord
}

func TestScanMarketFiltersRanksAndQueues(t *testing.T) {
	bulk := &stubBulk{rows: []models.BulkTicker{
		// Big mover on 3x volume, deep dollar volume: should rank first.
		bulkRow("MOVR", 50, 46, 3_000_000, 1_000_000),
		// Quiet large cap: passes filters, ranks lower.
		bulkRow("QUIE", 200, 199, 600_000, 600_000),
		// Penny stock, filtered by MinPrice.
		bulkRow("PNNY", 0.8, 0.7, 9_000_000, 4_000_000),
		// Illiquid name, filtered by MinVolume.
		bulkRow("THIN", 40, 39, 20_000, 25_000),
	}}
	store := &memStore{}
	queue := &memQueue{}
	coord := scanCoordinator(t, ratelimit.New(600, 100000), store, bulk, queue)

	res, err := coord.ScanMarket(context.Background(), models.ScanFilters{
		Exchange:  "US",
		MinPrice:  1,
		MinVolume: 100_000,
	})
	if err != nil {
		t.Fatalf("ScanMarket: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2: %+v", len(res.Candidates), res.Candidates)
	}
	if res.Candidates[0].Symbol != "MOVR" {
		t.Errorf("top candidate = %s, want MOVR", res.Candidates[0].Symbol)
	}
	if res.Candidates[0].OpportunityScore <= res.Candidates[1].OpportunityScore {
		t.Errorf("ranking broken: %v", res.Candidates)
	}
	if res.Record.ScannedTotal != 4 || res.Record.MatchedTotal != 2 {
		t.Errorf("record = %+v", res.Record)
	}
	if len(queue.enqueued) != 2 || res.Record.QueuedTotal != 2 {
		t.Errorf("queued = %d, record says %d, want 2", len(queue.enqueued), res.Record.QueuedTotal)
	}
	if queue.prios[0] != res.Candidates[0].OpportunityScore {
		t.Errorf("priority = %v, want the opportunity score %v", queue.prios[0], res.Candidates[0].OpportunityScore)
	}
	if len(store.scans) != 1 {
		t.Errorf("scan records stored = %d, want 1", len(store.scans))
	}
}

func TestScanMarketTruncatesToLimit(t *testing.T) {
	var rows []models.BulkTicker
	for i := 0; i < 30; i++ {
		rows = append(rows, bulkRow(fmt.Sprintf("SYM%02d", i), 50, 48, 1_000_000, 500_000))
	}
	coord := scanCoordinator(t, ratelimit.New(600, 100000), &memStore{}, &stubBulk{rows: rows}, &memQueue{})

	res, err := coord.ScanMarket(context.Background(), models.ScanFilters{Exchange: "US", Limit: 5})
	if err != nil {
		t.Fatalf("ScanMarket: %v", err)
	}
	if len(res.Candidates) != 5 {
		t.Errorf("candidates = %d, want 5", len(res.Candidates))
	}
}

func TestScanMarketSwallowsPersistenceFailure(t *testing.T) {
	store := &memStore{insertErr: fmt.Errorf("clickhouse down")}
	bulk := &stubBulk{rows: []models.BulkTicker{bulkRow("MOVR", 50, 46, 3_000_000, 1_000_000)}}
	coord := scanCoordinator(t, ratelimit.New(600, 100000), store, bulk, &memQueue{})

	res, err := coord.ScanMarket(context.Background(), models.ScanFilters{Exchange: "US"})
	if err != nil {
		t.Fatalf("ScanMarket must swallow store failures, got %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Errorf("candidates = %d, want 1", len(res.Candidates))
	}
}

func TestScanMarketRateLimitedStopsEarly(t *testing.T) {
	coord := scanCoordinator(t, ratelimit.New(5, 100000), &memStore{}, &stubBulk{}, nil)
	res, err := coord.ScanMarket(context.Background(), models.ScanFilters{Exchange: "US"})
	if err != nil {
		t.Fatalf("ScanMarket: %v", err)
	}
	if !res.RateLimited || len(res.Candidates) != 0 {
		t.Errorf("res = %+v, want rate-limited empty result", res)
	}
}

func TestScanMarketMissingExchangeIsValidationError(t *testing.T) {
	coord := scanCoordinator(t, ratelimit.New(600, 100000), &memStore{}, &stubBulk{}, nil)
	if _, err := coord.ScanMarket(context.Background(), models.ScanFilters{}); err == nil {
		t.Fatal("expected validation error")
	}
}
