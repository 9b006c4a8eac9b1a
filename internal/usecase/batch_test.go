package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"TradePulse/internal/service/ratelimit"
)

func symbolList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("SYM%02d", i)
	}
	return out
}

func TestAnalyzeBatchStopsEarlyOnBudgetExhaustion(t *testing.T) {
	// 27 calls per symbol, chunks of 10: chunk one spends 270, chunk two
	// brings the minute window to 540, chunk three's 270-call check fails.
	// The clock is pinned so the minute window cannot roll over mid-run.
	now := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(599, 100000,
		ratelimit.WithClock(func() time.Time { return now }),
		ratelimit.WithMaxBatchDelay(time.Millisecond))
	store := &memStore{}
	coord := newTestCoordinator(t, limiter, store, [3]float64{50, 50, 50})

	res, err := coord.AnalyzeBatch(context.Background(), symbolList(25))
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if len(res.Results) != 20 {
		t.Errorf("results = %d, want 20", len(res.Results))
	}
	if res.Summary.TotalSymbols != 25 {
		t.Errorf("TotalSymbols = %d, want 25", res.Summary.TotalSymbols)
	}
	if !res.Summary.StoppedEarly {
		t.Error("StoppedEarly not set")
	}
	if res.Summary.Completed != 20 {
		t.Errorf("Completed = %d, want 20", res.Summary.Completed)
	}
	if res.Summary.CallsUsed != 540 {
		t.Errorf("CallsUsed = %d, want 540", res.Summary.CallsUsed)
	}
}

func TestAnalyzeBatchCompletesWithAmpleBudget(t *testing.T) {
	limiter := ratelimit.New(10000, 100000, ratelimit.WithMaxBatchDelay(time.Millisecond))
	store := &memStore{}
	coord := newTestCoordinator(t, limiter, store, [3]float64{80, 80, 80})

	res, err := coord.AnalyzeBatch(context.Background(), symbolList(12))
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if res.Summary.Completed != 12 || res.Summary.StoppedEarly {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.Summary.SignalsCreated != 12 {
		t.Errorf("SignalsCreated = %d, want 12", res.Summary.SignalsCreated)
	}
}

func TestAnalyzeBatchRecordsPerSymbolFailures(t *testing.T) {
	limiter := ratelimit.New(10000, 100000, ratelimit.WithMaxBatchDelay(time.Millisecond))
	store := &memStore{failSymbol: "SYM03"}
	coord := newTestCoordinator(t, limiter, store, [3]float64{90, 90, 90})

	res, err := coord.AnalyzeBatch(context.Background(), symbolList(5))
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if res.Summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Summary.Failed)
	}
	if res.Summary.Completed != 4 || len(res.Results) != 4 {
		t.Errorf("Completed = %d, results = %d, want 4", res.Summary.Completed, len(res.Results))
	}
}

func TestAnalyzeBatchEmptyInputIsValidationError(t *testing.T) {
	coord := newTestCoordinator(t, ratelimit.New(600, 100000), &memStore{}, [3]float64{50, 50, 50})
	if _, err := coord.AnalyzeBatch(context.Background(), nil); err == nil {
		t.Fatal("expected validation error for empty batch")
	}
}
