package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/qrpay/internal/webhook/domain"
)

const maxWebhookBody = 1 << 20

type webhookEventResponse struct {
	ID          string     `json:"id"`
	Provider    string     `json:"provider"`
	EventType   string     `json:"event_type"`
	Payload     string     `json:"payload"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
	Error       *string    `json:"error"`
	PaymentID   *string    `json:"payment_id"`
	ReceivedAt  time.Time  `json:"received_at"`
}

func newWebhookEventResponse(e webhookdomain.WebhookEvent) webhookEventResponse {
	resp := webhookEventResponse{
		ID:         e.ID().String(),
		Provider:   e.Provider(),
		EventType:  e.EventType(),
		Payload:    e.Payload(),
		Processed:  e.Processed(),
		ReceivedAt: e.ReceivedAt(),
	}
	if at, ok := e.ProcessedAt(); ok {
		resp.ProcessedAt = &at
	}
	if msg, ok := e.Error(); ok {
		resp.Error = &msg
	}
	if id, ok := e.PaymentID(); ok {
		paymentID := id.String()
		resp.PaymentID = &paymentID
	}
	return resp
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), webhookdomain.IngestRequest{
		Provider: provider,
		Payload:  payload,
		Headers:  c.Request.Header,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"event_id":   result.EventID,
		"outcome":    result.Outcome,
		"payment_id": result.PaymentID,
	}})
}

func (s *Server) ListUnprocessedWebhooks(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	n := webhookdomain.DefaultUnprocessedLimit
	if limit != nil {
		n = *limit
	}

	events, err := s.webhookSvc.ListUnprocessed(c.Request.Context(), n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]webhookEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, newWebhookEventResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
