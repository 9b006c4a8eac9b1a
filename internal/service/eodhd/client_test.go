package eodhd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/service/ratelimit"
	xhttp "TradePulse/pkg/http"
)

func fastRetry() xhttp.RetryPolicy {
	return xhttp.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		MaxJitter:   0,
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *ratelimit.Limiter, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	limiter := ratelimit.New(60, 100000)
	c := New(srv.URL, "test-token", 2*time.Second, limiter, WithRetryPolicy(fastRetry()))
	return c, limiter, srv.Close
}

func TestGetQuoteDecodesAndConsumes(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/real-time/AAPL" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("api_token"); got != "test-token" {
			t.Errorf("api_token = %q", got)
		}
		w.Write([]byte(`{"code":"AAPL","timestamp":1724800000,"open":225.1,"high":229.9,"low":224.5,"close":229.0,"volume":41250000,"previousClose":224.3,"change":4.7,"change_p":2.0954}`))
	})
	c, limiter, done := newTestClient(t, handler)
	defer done()

	q, err := c.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Close != 229.0 || q.PreviousClose != 224.3 {
		t.Errorf("quote = %+v", q)
	}
	if q.ChangePercent != 2.0954 {
		t.Errorf("ChangePercent = %v", q.ChangePercent)
	}
	minute, _ := limiter.Stats()
	if minute.Used != CostQuote {
		t.Errorf("minute used = %d, want %d", minute.Used, CostQuote)
	}
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "upstream boom", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"code":"MSFT","timestamp":1724800000,"close":410.5}`))
	})
	c, _, done := newTestClient(t, handler)
	defer done()

	q, err := c.GetQuote(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("GetQuote after retries: %v", err)
	}
	if q.Close != 410.5 {
		t.Errorf("Close = %v", q.Close)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server saw %d calls, want 3", n)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown symbol", http.StatusNotFound)
	})
	c, _, done := newTestClient(t, handler)
	defer done()

	_, err := c.GetQuote(context.Background(), "NOPE")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var apiErr *models.ExternalAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *models.ExternalAPIError", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d", apiErr.Status)
	}
	if apiErr.Retryable() {
		t.Error("4xx must not be retryable")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server saw %d calls, want 1", n)
	}
}

func TestExhaustedRetriesSurfaceServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "still broken", http.StatusInternalServerError)
	})
	c, limiter, done := newTestClient(t, handler)
	defer done()

	_, err := c.GetDailyBars(context.Background(), "AAPL", time.Time{})
	var apiErr *models.ExternalAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Status != http.StatusInternalServerError || !apiErr.Retryable() {
		t.Errorf("apiErr = %+v", apiErr)
	}
	// The budget is spent even on failed calls.
	minute, _ := limiter.Stats()
	if minute.Used != CostDailyBars {
		t.Errorf("minute used = %d, want %d", minute.Used, CostDailyBars)
	}
}

func TestGetIndicatorMapsPerFunctionFields(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("function") {
		case "macd":
			w.Write([]byte(`[{"date":"2025-08-27","macd":1.25,"signal":0.9,"divergence":0.35}]`))
		case "bbands":
			w.Write([]byte(`[{"date":"2025-08-27","uband":112.4,"mband":105.0,"lband":97.6}]`))
		default:
			w.Write([]byte(`[{"date":"2025-08-27","rsi":28.4}]`))
		}
	})
	c, limiter, done := newTestClient(t, handler)
	defer done()

	rsi, err := c.GetIndicator(context.Background(), "AAPL", IndicatorRSI, 14, 0)
	if err != nil {
		t.Fatalf("rsi: %v", err)
	}
	if len(rsi) != 1 || rsi[0].Value != 28.4 {
		t.Errorf("rsi = %+v", rsi)
	}

	macd, err := c.GetIndicator(context.Background(), "AAPL", IndicatorMACD, 26, 0)
	if err != nil {
		t.Fatalf("macd: %v", err)
	}
	if macd[0].Value != 1.25 || macd[0].Signal != 0.9 || macd[0].Histogram != 0.35 {
		t.Errorf("macd = %+v", macd[0])
	}

	bb, err := c.GetIndicator(context.Background(), "AAPL", IndicatorBBands, 20, 2)
	if err != nil {
		t.Fatalf("bbands: %v", err)
	}
	if bb[0].UpperBand != 112.4 || bb[0].LowerBand != 97.6 || bb[0].Value != 105.0 {
		t.Errorf("bbands = %+v", bb[0])
	}

	minute, _ := limiter.Stats()
	if minute.Used != 3*CostIndicator {
		t.Errorf("minute used = %d, want %d", minute.Used, 3*CostIndicator)
	}
}

func TestGetIndicatorRejectsUnknownFunction(t *testing.T) {
	c, _, done := newTestClient(t, http.NotFoundHandler())
	defer done()

	_, err := c.GetIndicator(context.Background(), "AAPL", "vwap", 14, 0)
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *models.ValidationError", err)
	}
}

func TestGetBulkLastDay(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eod-bulk-last-day/US" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"code":"AAPL","exchange_short_name":"US","open":225.1,"high":229.9,"low":224.5,"close":229.0,"prev_close":224.3,"volume":41250000,"avg_volume":39000000}]`))
	})
	c, limiter, done := newTestClient(t, handler)
	defer done()

	rows, err := c.GetBulkLastDay(context.Background(), "US", time.Time{})
	if err != nil {
		t.Fatalf("GetBulkLastDay: %v", err)
	}
	if len(rows) != 1 || rows[0].Symbol != "AAPL" {
		t.Fatalf("rows = %+v", rows)
	}
	if pct := rows[0].ChangePct(); pct < 2.09 || pct > 2.10 {
		t.Errorf("ChangePct = %v", pct)
	}
	minute, _ := limiter.Stats()
	if minute.Used != CostBulkEOD {
		t.Errorf("minute used = %d, want %d", minute.Used, CostBulkEOD)
	}
}

func TestIntradayBarsSortedAscending(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"timestamp":1724800600,"close":101},{"timestamp":1724800000,"close":100}]`))
	})
	c, _, done := newTestClient(t, handler)
	defer done()

	bars, err := c.GetIntradayBars(context.Background(), "AAPL", "5m", time.Time{})
	if err != nil {
		t.Fatalf("GetIntradayBars: %v", err)
	}
	if len(bars) != 2 || !bars[0].Timestamp.Before(bars[1].Timestamp) {
		t.Errorf("bars not sorted: %+v", bars)
	}
}
