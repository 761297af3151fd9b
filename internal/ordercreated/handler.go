// Package ordercreated turns order-created notifications into pending
// payments with a QR instrument.
package ordercreated

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/apperr"
	obsmetrics "github.com/smallbiznis/qrpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/qrpay/internal/payment/domain"
	"go.uber.org/zap"
)

var ErrInvalidMessage = errors.New("invalid_order_message")

// Message is the order-created payload.
type Message struct {
	OrderID     string          `json:"order_id"`
	CustomerID  json.Number     `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Handler applies one message. A nil error means the message is done,
// including the case where the payment already existed.
type Handler struct {
	payments   paymentdomain.Service
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

func NewHandler(payments paymentdomain.Service, log *zap.Logger, m *obsmetrics.Metrics) *Handler {
	return &Handler{
		payments:   payments,
		log:        log.Named("ordercreated.handler"),
		obsMetrics: m,
	}
}

func (h *Handler) Handle(ctx context.Context, raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.obsMetrics.RecordOrderEvent(ctx, "invalid")
		return apperr.New(apperr.KindValidation, ErrInvalidMessage, err.Error())
	}

	payment, err := h.payments.Create(ctx, paymentdomain.CreatePaymentRequest{
		OrderID:            strings.TrimSpace(msg.OrderID),
		CustomerID:         strings.TrimSpace(msg.CustomerID.String()),
		Amount:             msg.TotalAmount,
		GenerateInstrument: true,
	})
	switch {
	case err == nil:
		h.obsMetrics.RecordOrderEvent(ctx, "created")
		h.log.Info("payment created for order",
			zap.String("order_id", msg.OrderID),
			zap.String("payment_id", payment.ID().String()),
		)
		return nil
	case errors.Is(err, paymentdomain.ErrDuplicateOrder):
		h.obsMetrics.RecordOrderEvent(ctx, "duplicate")
		h.log.Info("payment already exists for order", zap.String("order_id", msg.OrderID))
		return nil
	default:
		h.obsMetrics.RecordOrderEvent(ctx, "error")
		h.log.Error("create payment for order failed",
			zap.String("order_id", msg.OrderID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		return err
	}
}
