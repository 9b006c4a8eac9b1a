package eodhd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/service/ratelimit"
	xhttp "TradePulse/pkg/http"
)

// Provider call costs in budget units. The bulk dump is the expensive call,
// amortized over up to ~1000 symbols of an exchange.
const (
	CostQuote     = 1
	CostDailyBars = 1
	CostIntraday  = 5
	CostIndicator = 5
	CostBulkEOD   = 10
)

// Indicator functions accepted by GetIndicator.
const (
	IndicatorRSI    = "rsi"
	IndicatorSMA    = "sma"
	IndicatorMACD   = "macd"
	IndicatorBBands = "bbands"
)

// Client is a typed REST client for the EODHD market data API. Transient
// failures (5xx, timeouts, aborted connections) are retried with exponential
// backoff plus jitter; 4xx and exhausted retries surface as ExternalAPIError.
// Every call consumes its documented cost from the rate limiter.
type Client struct {
	baseURL string
	token   string
	http    *xhttp.Client
	retry   xhttp.RetryPolicy
	limiter *ratelimit.Limiter
	metrics repository.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p xhttp.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient overrides the transport, for tests.
func WithHTTPClient(h *xhttp.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates an EODHD client.
func New(baseURL, token string, timeout time.Duration, limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retry:   xhttp.DefaultRetryPolicy(),
		limiter: limiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get fetches path with the token and common params, retrying transient
// failures, then consumes cost from the limiter.
func (c *Client) get(ctx context.Context, endpoint, path string, params map[string]string, cost int, dest interface{}) error {
	qp := map[string][]string{
		"api_token": {c.token},
		"fmt":       {"json"},
	}
	for k, v := range params {
		qp[k] = []string{v}
	}

	err := c.retry.Do(ctx, func() error {
		return c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         c.baseURL + path,
			QueryParams: qp,
		}, dest)
	}, retryable)

	// The provider bills attempted calls; spend the budget either way.
	if c.limiter != nil {
		c.limiter.Consume(cost)
	}
	if c.metrics != nil {
		c.metrics.RecordAPICall(endpoint, cost)
	}

	if err != nil {
		return asAPIError(err)
	}
	return nil
}

func retryable(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	// Timeouts, resets and other transport failures carry no status.
	return true
}

func asAPIError(err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return &models.ExternalAPIError{Status: se.Status, Message: se.Body, Err: err}
	}
	return &models.ExternalAPIError{Message: err.Error(), Err: err}
}

type quoteResponse struct {
	Code          string  `json:"code"`
	Timestamp     int64   `json:"timestamp"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	PreviousClose float64 `json:"previousClose"`
	Change        float64 `json:"change"`
	ChangePct     float64 `json:"change_p"`
}

// GetQuote fetches the real-time snapshot for one symbol. Cost: 1.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if symbol == "" {
		return nil, models.NewValidationError("symbol", "must not be empty")
	}
	var qr quoteResponse
	if err := c.get(ctx, "real-time", "/real-time/"+symbol, nil, CostQuote, &qr); err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	return &models.Quote{
		Symbol:        symbol,
		Timestamp:     time.Unix(qr.Timestamp, 0).UTC(),
		Open:          qr.Open,
		High:          qr.High,
		Low:           qr.Low,
		Close:         qr.Close,
		Volume:        qr.Volume,
		PreviousClose: qr.PreviousClose,
		Change:        qr.Change,
		ChangePercent: qr.ChangePct,
	}, nil
}

type eodRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// GetDailyBars fetches historical daily bars since from. Cost: 1.
func (c *Client) GetDailyBars(ctx context.Context, symbol string, from time.Time) ([]models.Bar, error) {
	if symbol == "" {
		return nil, models.NewValidationError("symbol", "must not be empty")
	}
	params := map[string]string{"period": "d"}
	if !from.IsZero() {
		params["from"] = from.Format("2006-01-02")
	}
	var rows []eodRow
	if err := c.get(ctx, "eod", "/eod/"+symbol, params, CostDailyBars, &rows); err != nil {
		return nil, fmt.Errorf("eod %s: %w", symbol, err)
	}
	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Symbol: symbol, Timestamp: ts,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		})
	}
	return bars, nil
}

type intradayRow struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// GetIntradayBars fetches recent intraday bars at the given granularity
// ("1m", "5m", "1h"). Cost: 5.
func (c *Client) GetIntradayBars(ctx context.Context, symbol, interval string, from time.Time) ([]models.Bar, error) {
	if symbol == "" {
		return nil, models.NewValidationError("symbol", "must not be empty")
	}
	params := map[string]string{"interval": interval}
	if !from.IsZero() {
		params["from"] = strconv.FormatInt(from.Unix(), 10)
	}
	var rows []intradayRow
	if err := c.get(ctx, "intraday", "/intraday/"+symbol, params, CostIntraday, &rows); err != nil {
		return nil, fmt.Errorf("intraday %s: %w", symbol, err)
	}
	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, models.Bar{
			Symbol: symbol, Timestamp: time.Unix(r.Timestamp, 0).UTC(),
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// GetIndicator fetches a named technical indicator series. The multiplier is
// only meaningful for bbands (standard deviations) and is ignored elsewhere.
// Cost: 5.
func (c *Client) GetIndicator(ctx context.Context, symbol, function string, period int, multiplier float64) ([]models.IndicatorPoint, error) {
	if symbol == "" {
		return nil, models.NewValidationError("symbol", "must not be empty")
	}
	switch function {
	case IndicatorRSI, IndicatorSMA, IndicatorMACD, IndicatorBBands:
	default:
		return nil, models.NewValidationError("function", "unsupported indicator: "+function)
	}
	params := map[string]string{
		"function": function,
		"period":   strconv.Itoa(period),
	}
	if function == IndicatorBBands && multiplier > 0 {
		params["multiplier"] = strconv.FormatFloat(multiplier, 'f', -1, 64)
	}
	var rows []map[string]interface{}
	if err := c.get(ctx, "technical", "/technical/"+symbol, params, CostIndicator, &rows); err != nil {
		return nil, fmt.Errorf("technical %s %s: %w", symbol, function, err)
	}
	points := make([]models.IndicatorPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, indicatorPoint(function, r))
	}
	return points, nil
}

func indicatorPoint(function string, row map[string]interface{}) models.IndicatorPoint {
	f := func(key string) float64 {
		if v, ok := row[key].(float64); ok {
			return v
		}
		return 0
	}
	p := models.IndicatorPoint{}
	if d, ok := row["date"].(string); ok {
		p.Date = d
	}
	switch function {
	case IndicatorRSI:
		p.Value = f("rsi")
	case IndicatorSMA:
		p.Value = f("sma")
	case IndicatorMACD:
		p.Value = f("macd")
		p.Signal = f("signal")
		p.Histogram = f("divergence")
	case IndicatorBBands:
		p.Value = f("mband")
		p.UpperBand = f("uband")
		p.LowerBand = f("lband")
	}
	return p
}

// GetBulkLastDay fetches the end-of-day dump for a whole exchange,
// optionally for a specific date. Cost: 10, amortized across the exchange.
func (c *Client) GetBulkLastDay(ctx context.Context, exchange string, date time.Time) ([]models.BulkTicker, error) {
	if exchange == "" {
		return nil, models.NewValidationError("exchange", "must not be empty")
	}
	path := "/eod-bulk-last-day/" + exchange
	params := map[string]string{}
	if !date.IsZero() {
		params["date"] = date.Format("2006-01-02")
	}
	var rows []models.BulkTicker
	if err := c.get(ctx, "eod-bulk", path, params, CostBulkEOD, &rows); err != nil {
		return nil, fmt.Errorf("bulk %s: %w", exchange, err)
	}
	return rows, nil
}
