package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/marketcache"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/internal/service/scoring"
	"TradePulse/pkg/logger"
)

// stubLayer returns a fixed result and spends its reservation like a real
// layer's provider calls would.
type stubLayer struct {
	name        string
	reservation int
	result      models.LayerResult
	limiter     *ratelimit.Limiter
}

func (s *stubLayer) Name() string     { return s.name }
func (s *stubLayer) Reservation() int { return s.reservation }

func (s *stubLayer) Analyze(ctx context.Context, symbol string) models.LayerResult {
	if s.limiter != nil {
		s.limiter.Consume(s.reservation)
	}
	return s.result
}

// memStore is an in-memory SignalStore.
type memStore struct {
	mu         sync.Mutex
	signals    []*models.Signal
	scans      []*models.ScanRecord
	insertErr  error
	failSymbol string
}

func (m *memStore) InsertSignal(ctx context.Context, s *models.Signal) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if m.failSymbol != "" && s.Symbol == m.failSymbol {
		return nil, fmt.Errorf("duplicate key")
	}
	created := *s
	created.ID = fmt.Sprintf("sig-%d", len(m.signals)+1)
	m.signals = append(m.signals, &created)
	return &created, nil
}

func (m *memStore) QuerySignals(ctx context.Context, q models.SignalQuery) ([]*models.Signal, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Signal, len(m.signals))
	copy(out, m.signals)
	return out, int64(len(out)), nil
}

func (m *memStore) InsertScanRecord(ctx context.Context, r *models.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.scans = append(m.scans, r)
	return nil
}

func (m *memStore) Analytics(ctx context.Context, market string, since time.Time) (*models.SignalAnalytics, error) {
	return &models.SignalAnalytics{Market: market}, nil
}

func (m *memStore) AppendUserList(ctx context.Context, userID, list, symbol string) error { return nil }
func (m *memStore) RemoveUserList(ctx context.Context, userID, list, symbol string) error { return nil }
func (m *memStore) Health(ctx context.Context) error                                      { return nil }
func (m *memStore) Close() error                                                          { return nil }

// memQueue records enqueued candidates and priorities.
type memQueue struct {
	mu       sync.Mutex
	enqueued []models.ScanCandidate
	prios    []float64
}

func (m *memQueue) EnqueueCandidate(ctx context.Context, c models.ScanCandidate, priority float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, c)
	m.prios = append(m.prios, priority)
	return nil
}

func (m *memQueue) Depth(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.enqueued)), nil
}

// stubPrices is a fixed live-price board.
type stubPrices map[string]float64

func (s stubPrices) LastPrices() map[string]float64 { return s }

func layerResult(score float64, data map[string]interface{}) models.LayerResult {
	if data == nil {
		data = map[string]interface{}{}
	}
	return models.LayerResult{Score: score, Signals: []string{}, Data: data, DataComplete: true}
}

func newTestCoordinator(t *testing.T, limiter *ratelimit.Limiter, store *memStore, scores [3]float64) *Coordinator {
	t.Helper()
	scorer, err := scoring.New(scoring.DefaultWeights())
	if err != nil {
		t.Fatalf("scoring.New: %v", err)
	}
	tech := &stubLayer{name: "technical", reservation: 17, limiter: limiter,
		result: layerResult(scores[0], map[string]interface{}{"price": 100.0})}
	sent := &stubLayer{name: "sentiment", reservation: 5, limiter: limiter,
		result: layerResult(scores[1], map[string]interface{}{"volatility_pct": 1.5})}
	liq := &stubLayer{name: "liquidity", reservation: 5, limiter: limiter,
		result: layerResult(scores[2], map[string]interface{}{"class": "high"})}
	return NewCoordinator(tech, sent, liq, scorer, limiter, marketcache.New(),
		nil, store, nil, nil, nil, nil, logger.Nop(),
		Config{Market: "US", ChunkSize: 10, SignalThreshold: 70, SignalTTL: 24 * time.Hour})
}

func TestAnalyzeSymbolPersistsQualifyingSignal(t *testing.T) {
	limiter := ratelimit.New(600, 100000)
	store := &memStore{}
	coord := newTestCoordinator(t, limiter, store, [3]float64{80, 60, 70})

	res, err := coord.AnalyzeSymbol(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("AnalyzeSymbol: %v", err)
	}
	if res.Convergence.Score != 71 || res.Convergence.Strength != models.StrengthStrong {
		t.Errorf("convergence = %+v", res.Convergence)
	}
	if res.Signal == nil {
		t.Fatal("expected a persisted signal at score 71")
	}
	if res.Signal.Symbol != "AAPL" {
		t.Errorf("symbol = %q, want normalized AAPL", res.Signal.Symbol)
	}
	if !(res.Signal.StopLoss < res.Signal.EntryPrice && res.Signal.EntryPrice < res.Signal.TakeProfit) {
		t.Errorf("levels: stop %v entry %v take %v", res.Signal.StopLoss, res.Signal.EntryPrice, res.Signal.TakeProfit)
	}
	if res.CallsUsed != 27 {
		t.Errorf("CallsUsed = %d, want 27", res.CallsUsed)
	}
	if len(store.signals) != 1 {
		t.Errorf("stored %d signals, want 1", len(store.signals))
	}
}

func TestAnalyzeSymbolBelowThresholdNoSignal(t *testing.T) {
	limiter := ratelimit.New(600, 100000)
	store := &memStore{}
	coord := newTestCoordinator(t, limiter, store, [3]float64{55, 50, 50})

	res, err := coord.AnalyzeSymbol(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("AnalyzeSymbol: %v", err)
	}
	if res.Signal != nil {
		t.Errorf("signal created at score %d", res.Convergence.Score)
	}
	if len(store.signals) != 0 {
		t.Errorf("stored %d signals, want 0", len(store.signals))
	}
}

func TestAnalyzeSymbolRateLimitedDegradesNotErrors(t *testing.T) {
	limiter := ratelimit.New(10, 100000) // below the 27-call reservation
	store := &memStore{}
	coord := newTestCoordinator(t, limiter, store, [3]float64{90, 90, 90})

	res, err := coord.AnalyzeSymbol(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("AnalyzeSymbol: %v", err)
	}
	if !res.RateLimited {
		t.Error("RateLimited not set")
	}
	if res.Technical.Score != 50 || res.Convergence.Score != 50 {
		t.Errorf("res = %+v, want neutral", res)
	}
	if res.Signal != nil {
		t.Error("no signal should be created while rate limited")
	}
}

func TestAnalyzeSymbolEmptyIsValidationError(t *testing.T) {
	coord := newTestCoordinator(t, ratelimit.New(600, 100000), &memStore{}, [3]float64{50, 50, 50})
	_, err := coord.AnalyzeSymbol(context.Background(), "  ")
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestAnalyzeSymbolInsertFailureSurfacesDatabaseError(t *testing.T) {
	store := &memStore{insertErr: fmt.Errorf("connection refused")}
	coord := newTestCoordinator(t, ratelimit.New(600, 100000), store, [3]float64{90, 90, 90})

	_, err := coord.AnalyzeSymbol(context.Background(), "AAPL")
	var dbErr *models.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("error = %v, want DatabaseError", err)
	}
}

func TestAnalyzeSymbolDegradedTechnicalSkipsSignal(t *testing.T) {
	limiter := ratelimit.New(600, 100000)
	store := &memStore{}
	scorer, err := scoring.New(scoring.DefaultWeights())
	if err != nil {
		t.Fatalf("scoring.New: %v", err)
	}
	tech := &stubLayer{name: "technical", reservation: 17, limiter: limiter,
		result: models.NeutralLayerResult("provider unavailable")}
	sent := &stubLayer{name: "sentiment", reservation: 5, limiter: limiter,
		result: layerResult(95, map[string]interface{}{"volatility_pct": 1.5})}
	liq := &stubLayer{name: "liquidity", reservation: 5, limiter: limiter,
		result: layerResult(90, map[string]interface{}{"class": "high"})}
	coord := NewCoordinator(tech, sent, liq, scorer, limiter, marketcache.New(),
		nil, store, nil, nil, nil, nil, logger.Nop(),
		Config{Market: "US", ChunkSize: 10, SignalThreshold: 70, SignalTTL: 24 * time.Hour})

	res, err := coord.AnalyzeSymbol(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("AnalyzeSymbol: %v", err)
	}
	if res.Convergence.Score < 70 {
		t.Fatalf("convergence = %d, want the threshold crossed", res.Convergence.Score)
	}
	if res.Signal != nil {
		t.Errorf("signal created with no entry price: %+v", res.Signal)
	}
	if len(store.signals) != 0 {
		t.Errorf("stored %d signals, want 0", len(store.signals))
	}
}

func TestAnalyzeSymbolDegradedTechnicalFallsBackToLivePrice(t *testing.T) {
	limiter := ratelimit.New(600, 100000)
	store := &memStore{}
	scorer, err := scoring.New(scoring.DefaultWeights())
	if err != nil {
		t.Fatalf("scoring.New: %v", err)
	}
	tech := &stubLayer{name: "technical", reservation: 17, limiter: limiter,
		result: models.NeutralLayerResult("provider unavailable")}
	sent := &stubLayer{name: "sentiment", reservation: 5, limiter: limiter,
		result: layerResult(95, map[string]interface{}{"volatility_pct": 1.5})}
	liq := &stubLayer{name: "liquidity", reservation: 5, limiter: limiter,
		result: layerResult(90, map[string]interface{}{"class": "high"})}
	coord := NewCoordinator(tech, sent, liq, scorer, limiter, marketcache.New(),
		nil, store, nil, nil, stubPrices{"AAPL": 42.5}, nil, logger.Nop(),
		Config{Market: "US", ChunkSize: 10, SignalThreshold: 70, SignalTTL: 24 * time.Hour})

	res, err := coord.AnalyzeSymbol(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("AnalyzeSymbol: %v", err)
	}
	if res.Signal == nil {
		t.Fatal("expected a signal backed by the live tick price")
	}
	if res.Signal.EntryPrice != 42.5 {
		t.Errorf("EntryPrice = %v, want 42.5", res.Signal.EntryPrice)
	}
	if res.Signal.StopLoss <= 0 || res.Signal.StopLoss >= res.Signal.EntryPrice {
		t.Errorf("StopLoss = %v, want below entry", res.Signal.StopLoss)
	}
	if res.Signal.TakeProfit <= res.Signal.EntryPrice {
		t.Errorf("TakeProfit = %v, want above entry", res.Signal.TakeProfit)
	}
}
