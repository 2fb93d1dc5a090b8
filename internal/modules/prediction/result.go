package prediction

import (
	"encoding/json"

	"github.com/aristath/forecaster/internal/ml/boosting"
)

// Indicators is the latest-row indicator snapshot
type Indicators struct {
	RSI   float64 `json:"rsi"`
	MACD  float64 `json:"macd"`
	BBPos float64 `json:"bb_pos"`
}

// HistoryPoint is one close in the chart series
type HistoryPoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Forecast is the prediction payload, also stored as the prediction cache
type Forecast struct {
	Symbol          string                       `json:"symbol"`
	LatestDate      string                       `json:"latest_date"`
	LatestClose     float64                      `json:"latest_close"`
	Prediction      float64                      `json:"prediction"`
	Change          float64                      `json:"change"`
	ChangePct       float64                      `json:"change_pct"`
	Indicators      Indicators                   `json:"indicators"`
	History         []HistoryPoint               `json:"history"`
	TopFeatures     []boosting.FeatureImportance `json:"top_features,omitempty"`
	Cached          bool                         `json:"cached"`
	CacheAgeMinutes *int                         `json:"cache_age_minutes,omitempty"`
}

// Quote is one instrument of the market overview
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Volume    *int64  `json:"volume,omitempty"`
}

// Overview is the market overview payload
type Overview struct {
	Indices   []Quote `json:"indices"`
	TopStocks []Quote `json:"top_stocks"`
	Timestamp string  `json:"timestamp"`
}

// Failure is the error payload
type Failure struct {
	Error    string `json:"error"`
	Training bool   `json:"training,omitempty"`
}

// Result is exactly one of a forecast, an overview or a failure
type Result struct {
	Forecast *Forecast
	Overview *Overview
	Failure  *Failure
}

// Fail builds a failure result
func Fail(msg string) Result {
	return Result{Failure: &Failure{Error: msg}}
}

// Failed reports whether r carries a failure
func (r Result) Failed() bool {
	return r.Failure != nil
}

// MarshalJSON encodes whichever payload is set
func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.Failure != nil:
		return json.Marshal(r.Failure)
	case r.Forecast != nil:
		return json.Marshal(r.Forecast)
	case r.Overview != nil:
		return json.Marshal(r.Overview)
	default:
		return json.Marshal(Failure{Error: "empty result"})
	}
}
