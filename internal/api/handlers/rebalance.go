package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"factor-backtest/internal/api/models"
	"factor-backtest/internal/broker"
	"factor-backtest/internal/rebalance"
	"factor-backtest/internal/task"
)

// RebalanceHandler handles dry-run rebalance requests. Live order submission
// is deliberately CLI-only; over HTTP every run records orders against the
// snapshot the caller supplies instead of touching a brokerage.
type RebalanceHandler struct {
	tester *task.Tester
	log    *zap.SugaredLogger
}

// NewRebalanceHandler creates a new rebalance handler around the shared tester.
func NewRebalanceHandler(tester *task.Tester, log *zap.SugaredLogger) *RebalanceHandler {
	return &RebalanceHandler{tester: tester, log: log}
}

// DryRun handles POST /api/v1/rebalance
func (h *RebalanceHandler) DryRun(c *gin.Context) {
	var req models.RebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	date, targets, err := h.tester.TargetsAsOf(req.Factor, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "TARGETS_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	client := recordingClient(&req)
	report, err := rebalance.New(client, h.log, h.tester.Config().Broker.LotSize).Run("dryrun", targets)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "REBALANCE_ABORTED",
				Message: err.Error(),
				Details: map[string]interface{}{
					"state":     string(report.State),
					"submitted": len(report.Submitted),
				},
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.RebalanceResponse{
		Factor:  req.Factor,
		DryRun:  true,
		Date:    date.Format("2006-01-02"),
		Targets: targets,
		Report:  report,
	})
}

// recordingClient converts the request snapshot into an in-memory broker.
func recordingClient(req *models.RebalanceRequest) *broker.RecordingClient {
	snap := broker.Performance{
		Cash:   decimal.NewFromFloat(req.Portfolio.Cash),
		Assets: decimal.NewFromFloat(req.Portfolio.Assets),
	}
	for _, p := range req.Portfolio.Positions {
		snap.Positions = append(snap.Positions, broker.Position{
			Code:   broker.NormalizeCode(p.Code),
			Shares: decimal.NewFromInt(p.Shares),
			Price:  decimal.NewFromFloat(p.Price),
		})
	}
	quotes := make(map[string]decimal.Decimal, len(req.Quotes))
	for code, price := range req.Quotes {
		quotes[broker.StripCode(code)] = decimal.NewFromFloat(price)
	}
	return broker.NewRecordingClient(snap, quotes)
}
