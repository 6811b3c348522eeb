package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"factor-backtest/internal/api/models"
	"factor-backtest/internal/task"
)

// FactorHandler handles factor listing requests
type FactorHandler struct {
	tester *task.Tester
	log    *zap.SugaredLogger
}

// NewFactorHandler creates a new factor handler around the shared tester.
func NewFactorHandler(tester *task.Tester, log *zap.SugaredLogger) *FactorHandler {
	return &FactorHandler{tester: tester, log: log}
}

// ListFactors handles GET /api/v1/factors. It merges the registered compute
// functions with the columns already dumped into the factor store.
func (h *FactorHandler) ListFactors(c *gin.Context) {
	stored := map[string]bool{}
	cols, err := h.tester.Factors().Columns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "STORE_ERROR",
				Message: err.Error(),
			},
		})
		return
	}
	for _, col := range cols {
		stored[col] = true
	}
	registered := map[string]bool{}
	for _, name := range h.tester.Registry().Names() {
		registered[name] = true
	}

	names := make([]string, 0, len(stored)+len(registered))
	for name := range stored {
		names = append(names, name)
	}
	for name := range registered {
		if !stored[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	resp := models.FactorsResponse{Factors: make([]models.FactorInfo, 0, len(names))}
	for _, name := range names {
		resp.Factors = append(resp.Factors, models.FactorInfo{
			Name:       name,
			Registered: registered[name],
			Stored:     stored[name],
		})
	}
	c.JSON(http.StatusOK, resp)
}
