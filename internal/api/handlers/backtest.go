package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"factor-backtest/internal/api/models"
	"factor-backtest/internal/config"
	"factor-backtest/internal/panel"
	"factor-backtest/internal/task"
)

// BacktestHandler handles backtest-related requests
type BacktestHandler struct {
	tester *task.Tester
	log    *zap.SugaredLogger
}

// NewBacktestHandler creates a new backtest handler around the shared tester.
func NewBacktestHandler(tester *task.Tester, log *zap.SugaredLogger) *BacktestHandler {
	return &BacktestHandler{tester: tester, log: log}
}

// RunBacktest handles POST /api/v1/backtest
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	cfg, err := overrideConfig(h.tester.Config(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_CONFIG",
				Message: err.Error(),
			},
		})
		return
	}

	res, err := h.tester.WithConfig(cfg).Backtest(req.Factor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "BACKTEST_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	groupFinal := make([]float64, len(res.Groups))
	for i, g := range res.Groups {
		groupFinal[i] = g.Evaluation.FinalValue
	}
	resp := models.BacktestResponse{
		ID:         uuid.New().String(),
		Factor:     req.Factor,
		Status:     "completed",
		Evaluation: res.TopK.Evaluation,
		ICMean:     res.ICSummary.Mean,
		ICIR:       res.ICSummary.IR,
		GroupFinal: groupFinal,
		TopKValue:  seriesPoints(res.TopK.Value),
	}
	if res.LongShortValue != nil {
		resp.LongShort = seriesPoints(res.LongShortValue)
	}
	c.JSON(http.StatusOK, resp)
}

// overrideConfig copies the server configuration and applies per-request
// overrides, then revalidates the result.
func overrideConfig(base *config.Config, req *models.BacktestRequest) (*config.Config, error) {
	cfg := *base
	if req.Start != "" {
		cfg.Backtest.Start = req.Start
	}
	if req.Stop != "" {
		cfg.Backtest.Stop = req.Stop
	}
	if req.NGroup != 0 {
		cfg.Backtest.NGroup = req.NGroup
	}
	if req.TopK != 0 {
		cfg.Backtest.TopK = req.TopK
	}
	if req.Rebalance != 0 {
		cfg.Backtest.Rebalance = req.Rebalance
	}
	if req.Delay != 0 {
		cfg.Backtest.Delay = req.Delay
	}
	if req.Commission != 0 {
		cfg.Backtest.Commission = req.Commission
	}
	if req.Descending != nil {
		cfg.Backtest.Descending = *req.Descending
	}
	if req.LongShort != nil {
		cfg.Backtest.LongShort = *req.LongShort
	}
	if req.ICMethod != "" {
		cfg.Backtest.ICMethod = req.ICMethod
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func seriesPoints(s *panel.Series) []models.SeriesPoint {
	if s == nil {
		return nil
	}
	points := make([]models.SeriesPoint, 0, len(s.Dates))
	for i, d := range s.Dates {
		points = append(points, models.SeriesPoint{
			Date:  d.Format("2006-01-02"),
			Value: s.Values[i],
		})
	}
	return points
}
