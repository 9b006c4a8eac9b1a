package models

// HTTP request payloads for the coordinator surface. Transport concerns only;
// handlers convert these into domain calls after bind + defaults + validate.

type AnalyzeBatchRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=1000,dive,required"`
	Market  string   `json:"market" default:"US"`
}

type ScanRequest struct {
	Exchange     string  `json:"exchange" query:"exchange" default:"US"`
	MinPrice     float64 `json:"min_price" query:"min_price" default:"2" validate:"gte=0"`
	MaxPrice     float64 `json:"max_price" query:"max_price" default:"10000" validate:"gte=0"`
	MinVolume    float64 `json:"min_volume" query:"min_volume" default:"500000" validate:"gte=0"`
	MinChangePct float64 `json:"min_change_pct" query:"min_change_pct" default:"2"`
	Limit        int     `json:"limit" query:"limit" default:"20" validate:"gte=1,lte=100"`
}

type WeightsRequest struct {
	Technical float64 `json:"technical" validate:"gte=0,lte=1"`
	Sentiment float64 `json:"sentiment" validate:"gte=0,lte=1"`
	Liquidity float64 `json:"liquidity" validate:"gte=0,lte=1"`
}

type SignalsRequest struct {
	Symbol   string `query:"symbol"`
	Market   string `query:"market"`
	MinScore int    `query:"min_score" validate:"gte=0,lte=100"`
	Strength string `query:"strength" validate:"omitempty,oneof=WEAK MODERATE STRONG VERY_STRONG"`
	SortBy   string `query:"sort_by" default:"created_at" validate:"oneof=created_at convergence_score"`
	Limit    int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
	Offset   int    `query:"offset" validate:"gte=0"`
	Active   bool   `query:"active"`
}

type OverviewRequest struct {
	Market string `query:"market" default:"US"`
	Limit  int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

type AnalyticsRequest struct {
	Market string `query:"market" default:"US"`
	Days   int    `query:"days" default:"7" validate:"gte=1,lte=90"`
	// Since overrides Days when set. RFC3339 or unix seconds.
	Since string `query:"since" validate:"omitempty"`
}
