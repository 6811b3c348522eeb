package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"factor-backtest/internal/api/models"
)

// ErrorHandler converts handler panics into the typed error envelope the rest
// of the API speaks, so a crashed run never leaks a stack trace to callers.
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		msg := "unexpected server error"
		switch v := recovered.(type) {
		case error:
			msg = v.Error()
		case string:
			msg = v
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INTERNAL_ERROR", Message: msg},
		})
	})
}
