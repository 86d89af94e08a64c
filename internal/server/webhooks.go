package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/freightpay/internal/webhook/domain"
)

// HandleFactoringWebhook answers 200 with the stored record even when applying
// the event failed; processed_at stays null and the provider redelivers.
func (s *Server) HandleFactoringWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	var evt webhookdomain.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.webhookSvc.Process(c.Request.Context(), provider, evt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}
