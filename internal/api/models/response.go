package models

import (
	"factor-backtest/internal/backtest"
	"factor-backtest/internal/rebalance"
)

// SeriesPoint is one dated value of a result series.
type SeriesPoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// BacktestResponse represents the response from a backtest run.
type BacktestResponse struct {
	ID         string              `json:"id"`
	Factor     string              `json:"factor"`
	Status     string              `json:"status"`
	Evaluation backtest.Evaluation `json:"evaluation"`
	ICMean     float64             `json:"ic_mean"`
	ICIR       float64             `json:"ic_ir"`
	GroupFinal []float64           `json:"group_final_values"`
	TopKValue  []SeriesPoint       `json:"topk_value"`
	LongShort  []SeriesPoint       `json:"longshort_value,omitempty"`
	OutputDir  string              `json:"output_dir,omitempty"`
}

// ICResponse represents the response from an information-coefficient run.
type ICResponse struct {
	Factor string        `json:"factor"`
	Method string        `json:"method"`
	Mean   float64       `json:"mean"`
	Std    float64       `json:"std"`
	IR     float64       `json:"ir"`
	N      int           `json:"n"`
	Series []SeriesPoint `json:"series"`
}

// RebalanceResponse represents the response from a dry-run rebalance.
type RebalanceResponse struct {
	Factor  string            `json:"factor"`
	DryRun  bool              `json:"dry_run"`
	Date    string            `json:"date"`
	Targets []string          `json:"targets"`
	Report  *rebalance.Report `json:"report"`
}

// FactorInfo describes one factor visible to the server: registered for
// computation, stored in the factor store, or both.
type FactorInfo struct {
	Name       string `json:"name"`
	Registered bool   `json:"registered"`
	Stored     bool   `json:"stored"`
}

// FactorsResponse lists the factors the server knows about.
type FactorsResponse struct {
	Factors []FactorInfo `json:"factors"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
