package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/qrpay/internal/payment/domain"
)

type createPaymentRequest struct {
	OrderID            string          `json:"order_id"`
	CustomerID         json.Number     `json:"customer_id"`
	Amount             decimal.Decimal `json:"amount"`
	GenerateInstrument *bool           `json:"generate_instrument"`
}

type confirmPaymentRequest struct {
	ConfirmedAt string `json:"confirmed_at"`
}

type setPaymentStatusRequest struct {
	Status string `json:"status"`
}

type paymentResponse struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	CustomerID     string     `json:"customer_id"`
	CustomerName   string     `json:"customer_name,omitempty"`
	Amount         string     `json:"amount"`
	Status         string     `json:"status"`
	Description    string     `json:"description"`
	InstrumentCode *string    `json:"instrument_code"`
	ExternalID     *string    `json:"external_id"`
	PaidAt         *time.Time `json:"paid_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type providerStatusResponse struct {
	ExternalID string     `json:"external_id"`
	Status     string     `json:"status"`
	PaidAt     *time.Time `json:"paid_at"`
}

func newPaymentResponse(p paymentdomain.Payment) paymentResponse {
	resp := paymentResponse{
		ID:          p.ID().String(),
		OrderID:     p.OrderID().String(),
		CustomerID:  p.CustomerID().String(),
		Amount:      p.Amount().StringFixed(2),
		Status:      p.Status().String(),
		Description: p.Description(),
		CreatedAt:   p.CreatedAt(),
		UpdatedAt:   p.UpdatedAt(),
	}
	if code, ok := p.InstrumentCode(); ok {
		resp.InstrumentCode = &code
	}
	if ext, ok := p.ExternalID(); ok {
		resp.ExternalID = &ext
	}
	if paidAt, ok := p.PaidAt(); ok {
		resp.PaidAt = &paidAt
	}
	return resp
}

func newPaymentListResponse(payments []paymentdomain.Payment) []paymentResponse {
	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, newPaymentResponse(p))
	}
	return resp
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	generate := true
	if req.GenerateInstrument != nil {
		generate = *req.GenerateInstrument
	}

	resp, err := s.paymentSvc.Create(c.Request.Context(), paymentdomain.CreatePaymentRequest{
		OrderID:            strings.TrimSpace(req.OrderID),
		CustomerID:         strings.TrimSpace(req.CustomerID.String()),
		Amount:             req.Amount,
		GenerateInstrument: generate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": newPaymentResponse(resp)})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	details, err := s.paymentSvc.GetDisplay(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := newPaymentResponse(details.Payment)
	resp.CustomerName = details.CustomerName
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentByOrderID(c *gin.Context) {
	resp, err := s.paymentSvc.GetByOrderID(c.Request.Context(), strings.TrimSpace(c.Param("orderId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(resp)})
}

func (s *Server) ListPaymentsByCustomer(c *gin.Context) {
	payments, err := s.paymentSvc.ListByCustomer(c.Request.Context(), strings.TrimSpace(c.Param("customerId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentListResponse(payments)})
}

func (s *Server) ListPaymentsByStatus(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	if status == "" {
		AbortWithError(c, newValidationError("status", "required", "status is required"))
		return
	}

	payments, err := s.paymentSvc.ListByStatus(c.Request.Context(), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentListResponse(payments)})
}

func (s *Server) GetProviderStatus(c *gin.Context) {
	status, err := s.paymentSvc.QueryProviderStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": providerStatusResponse{
		ExternalID: status.ExternalID,
		Status:     status.Status,
		PaidAt:     status.PaidAt,
	}})
}

func (s *Server) AttachPaymentInstrument(c *gin.Context) {
	resp, err := s.paymentSvc.AttachInstrument(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(resp)})
}

func (s *Server) CancelPayment(c *gin.Context) {
	resp, err := s.paymentSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(resp)})
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	confirmedAt, err := parseOptionalTime(req.ConfirmedAt)
	if err != nil {
		AbortWithError(c, newValidationError("confirmed_at", "invalid_confirmed_at", "invalid confirmed_at"))
		return
	}

	confirm := paymentdomain.ConfirmPaymentRequest{
		ExternalID:  strings.TrimSpace(c.Param("externalId")),
		ConfirmedAt: time.Now().UTC(),
	}
	if confirmedAt != nil {
		confirm.ConfirmedAt = confirmedAt.UTC()
	}

	resp, err := s.paymentSvc.Confirm(c.Request.Context(), confirm)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(resp)})
}

func (s *Server) RejectPayment(c *gin.Context) {
	resp, err := s.paymentSvc.Reject(c.Request.Context(), strings.TrimSpace(c.Param("externalId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(resp)})
}

// SetPaymentStatus is the operator override. Terminal outcomes are
// announced the same way as confirm and reject.
func (s *Server) SetPaymentStatus(c *gin.Context) {
	var req setPaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.SetStatus(c.Request.Context(), paymentdomain.SetStatusRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Status: req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(resp)})
}
