package models

// BacktestRequest represents the request body for running a factor backtest.
// Only the factor name is required; every other field overrides the server's
// configured default when set.
type BacktestRequest struct {
	Factor     string  `json:"factor" binding:"required"`
	Start      string  `json:"start,omitempty"` // YYYY-MM-DD
	Stop       string  `json:"stop,omitempty"`  // YYYY-MM-DD
	NGroup     int     `json:"ngroup,omitempty"`
	TopK       int     `json:"topk,omitempty"`
	Rebalance  int     `json:"rebalance,omitempty"`
	Delay      int     `json:"delay,omitempty"`
	Commission float64 `json:"commission,omitempty"`
	Descending *bool   `json:"descending,omitempty"`
	LongShort  *int    `json:"longshort,omitempty"` // +1 | -1 | 0 = follow IC sign
	ICMethod   string  `json:"ic_method,omitempty"` // pearson | spearman
}

// ICRequest represents the request body for an information-coefficient run.
type ICRequest struct {
	Factor string `json:"factor" binding:"required"`
	Method string `json:"method,omitempty"` // pearson | spearman
	Span   int    `json:"span,omitempty"`   // forward-return horizon in trading days
}

// RebalanceRequest represents the request body for a dry-run rebalance. The
// caller supplies the portfolio snapshot and quote table; the server never
// submits real orders over HTTP.
type RebalanceRequest struct {
	Factor    string             `json:"factor" binding:"required"`
	TopK      int                `json:"topk,omitempty"`
	Portfolio PortfolioSnapshot  `json:"portfolio" binding:"required"`
	Quotes    map[string]float64 `json:"quotes,omitempty"` // code -> last price
}

// PortfolioSnapshot mirrors a brokerage performance read.
type PortfolioSnapshot struct {
	Cash      float64        `json:"cash"`
	Assets    float64        `json:"assets" binding:"required"`
	Positions []PositionSpec `json:"positions,omitempty"`
}

// PositionSpec is one held name inside a snapshot.
type PositionSpec struct {
	Code   string  `json:"code" binding:"required"`
	Shares int64   `json:"shares"`
	Price  float64 `json:"price"`
}
