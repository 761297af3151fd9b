package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/qrpay/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventTypePaymentConfirmed = "payment.confirmed"
	EventTypePaymentFailed    = "payment.failed"
)

// Event is a pending outbound notification. AggregateID is the payment id.
type Event struct {
	ID          snowflake.ID   `gorm:"column:id"`
	EventType   string         `gorm:"column:event_type"`
	AggregateID snowflake.ID   `gorm:"column:aggregate_id"`
	Payload     datatypes.JSON `gorm:"column:payload"`
	Published   bool           `gorm:"column:published"`
	PublishedAt *time.Time     `gorm:"column:published_at"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}

type PaymentConfirmed struct {
	PaymentID   string          `json:"payment_id"`
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

type PaymentFailed struct {
	PaymentID string    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// Publisher stores notifications for asynchronous delivery. Passing the
// transaction that changed the payment keeps the status change and its
// notification atomic; a nil db uses the publisher's own connection.
type Publisher interface {
	PaymentConfirmed(ctx context.Context, db *gorm.DB, payment paymentdomain.Payment) error
	PaymentFailed(ctx context.Context, db *gorm.DB, payment paymentdomain.Payment, reason string) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	// ListUnpublished returns the oldest pending events first.
	ListUnpublished(ctx context.Context, db *gorm.DB, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
}

// Sink delivers an event to the message broker.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
