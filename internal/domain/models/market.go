package models

import "time"

// Quote is an immutable real-time snapshot for one symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Timestamp     time.Time `json:"timestamp"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
}

// Bar is a single OHLCV record, daily or intraday.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// IndicatorPoint is one dated value of a technical indicator series.
// Band values (Bollinger upper/lower, MACD signal/histogram) are optional.
type IndicatorPoint struct {
	Date      string  `json:"date"`
	Value     float64 `json:"value"`
	UpperBand float64 `json:"upper_band,omitempty"`
	LowerBand float64 `json:"lower_band,omitempty"`
	Signal    float64 `json:"signal,omitempty"`
	Histogram float64 `json:"histogram,omitempty"`
}

// BulkTicker is one row of an exchange-wide end-of-day dump.
type BulkTicker struct {
	Symbol        string  `json:"code"`
	Exchange      string  `json:"exchange_short_name"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	PreviousClose float64 `json:"prev_close"`
	Volume        float64 `json:"volume"`
	AvgVolume     float64 `json:"avg_volume"`
}

// ChangePct returns day-over-day percent change for the bulk row.
func (b BulkTicker) ChangePct() float64 {
	if b.PreviousClose == 0 {
		return 0
	}
	return (b.Close - b.PreviousClose) / b.PreviousClose * 100
}

// DollarVolume returns close * volume.
func (b BulkTicker) DollarVolume() float64 {
	return b.Close * b.Volume
}

// Tick is a live trade or quote frame from the streaming feed.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Kind      string    `json:"kind"` // "trade" or "quote"
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	BidPrice  float64   `json:"bid_price,omitempty"`
	BidSize   float64   `json:"bid_size,omitempty"`
	AskPrice  float64   `json:"ask_price,omitempty"`
	AskSize   float64   `json:"ask_size,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
