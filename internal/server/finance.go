package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type forecastQuery struct {
	RangeDays int `form:"range_days"`
}

func (s *Server) GetFinanceSummary(c *gin.Context) {
	summary, err := s.financeSvc.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetFinanceForecast(c *gin.Context) {
	var q forecastQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	forecast, err := s.financeSvc.Forecast(c.Request.Context(), q.RangeDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": forecast})
}

// RunOverdueSweep runs one overdue sweep inline.
func (s *Server) RunOverdueSweep(c *gin.Context) {
	marked, err := s.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("manual overdue sweep", zap.Int("marked", marked))
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"marked": marked}})
}
