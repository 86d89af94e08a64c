package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/freightpay/internal/invoice/domain"
)

type submitFactoringRequest struct {
	Provider string `json:"provider"`
}

func parseInvoiceID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, invalidIDError())
		return 0, false
	}
	return id, true
}

// bindOptionalJSON binds a JSON body, accepting an empty one.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return false
	}
	return true
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.ListInvoices(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            resp.Invoices,
		"next_page_token": resp.NextPageToken,
		"has_more":        resp.HasMore,
	})
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) IssueInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.IssueInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) SendInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.SendInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) VoidInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	var req invoicedomain.VoidRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	inv, err := s.invoiceSvc.VoidInvoice(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) DisputeInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	var req invoicedomain.DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.DisputeInvoice(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ResolveDispute(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	var req invoicedomain.ResolveDisputeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	inv, err := s.invoiceSvc.ResolveDispute(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) SubmitToFactoring(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	var req submitFactoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.invoiceSvc.SubmitToFactoring(c.Request.Context(), id, req.Provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) RecordPayment(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	var req invoicedomain.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.invoiceSvc.RecordPayment(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}
