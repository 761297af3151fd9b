package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Instrument is what a gateway hands back for a new QR payment.
type Instrument struct {
	Code           string
	ExternalID     string
	ProviderStatus string
}

// ProviderStatus is the gateway's own view of a payment.
type ProviderStatus struct {
	ExternalID string     `json:"external_id"`
	Status     string     `json:"status"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// Gateway issues QR instruments and reports provider-side status. Callers
// never retry; implementations own their retry policy.
type Gateway interface {
	Provider() string
	GenerateInstrument(ctx context.Context, amount decimal.Decimal, description string, orderID uuid.UUID) (Instrument, error)
	QueryStatus(ctx context.Context, externalID string) (ProviderStatus, error)
}
