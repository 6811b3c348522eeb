package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"factor-backtest/internal/api/models"
	"factor-backtest/internal/task"
)

// ICHandler handles information-coefficient requests
type ICHandler struct {
	tester *task.Tester
	log    *zap.SugaredLogger
}

// NewICHandler creates a new IC handler around the shared tester.
func NewICHandler(tester *task.Tester, log *zap.SugaredLogger) *ICHandler {
	return &ICHandler{tester: tester, log: log}
}

// Run handles POST /api/v1/ic
func (h *ICHandler) Run(c *gin.Context) {
	var req models.ICRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	cfg := *h.tester.Config()
	if req.Method != "" {
		cfg.Backtest.ICMethod = req.Method
	}
	if req.Span != 0 {
		cfg.Backtest.Rebalance = req.Span
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_CONFIG",
				Message: err.Error(),
			},
		})
		return
	}

	series, summary, err := h.tester.WithConfig(&cfg).InfoCoef(req.Factor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "IC_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.ICResponse{
		Factor: req.Factor,
		Method: cfg.Backtest.ICMethod,
		Mean:   summary.Mean,
		Std:    summary.Std,
		IR:     summary.IR,
		N:      summary.N,
		Series: seriesPoints(series),
	})
}
