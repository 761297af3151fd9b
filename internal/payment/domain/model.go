package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/apperr"
)

// amounts are stored as NUMERIC(10,2)
var maxAmount = decimal.RequireFromString("99999999.99")

// Payment follows the pending -> approved|rejected|cancelled lifecycle.
// Approved is terminal; rejected and cancelled payments may still be
// confirmed.
type Payment struct {
	id             snowflake.ID
	orderID        uuid.UUID
	customerID     snowflake.ID
	amount         decimal.Decimal
	instrumentCode *string
	externalID     *string
	status         Status
	paidAt         *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewPayment builds a pending payment. The amount is rounded to cents and
// must stay strictly positive.
func NewPayment(id snowflake.ID, orderID uuid.UUID, customerID snowflake.ID, amount decimal.Decimal, now time.Time) (*Payment, error) {
	if orderID == uuid.Nil {
		return nil, apperr.Validation(ErrInvalidOrderID)
	}
	if customerID <= 0 {
		return nil, apperr.Validation(ErrInvalidCustomerID)
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, errAmountNotPositive
	}
	if amount.GreaterThan(maxAmount) {
		return nil, errAmountTooLarge
	}

	return &Payment{
		id:         id,
		orderID:    orderID,
		customerID: customerID,
		amount:     amount,
		status:     StatusPending,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// PaymentState is the persisted form of a payment.
type PaymentState struct {
	ID             snowflake.ID
	OrderID        uuid.UUID
	CustomerID     snowflake.ID
	Amount         decimal.Decimal
	InstrumentCode *string
	ExternalID     *string
	Status         Status
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RestorePayment rebuilds a payment from stored state without validation.
func RestorePayment(s PaymentState) *Payment {
	return &Payment{
		id:             s.ID,
		orderID:        s.OrderID,
		customerID:     s.CustomerID,
		amount:         s.Amount,
		instrumentCode: s.InstrumentCode,
		externalID:     s.ExternalID,
		status:         s.Status,
		paidAt:         s.PaidAt,
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
	}
}

// State returns a copy of the payment's fields for persistence.
func (p Payment) State() PaymentState {
	return PaymentState{
		ID:             p.id,
		OrderID:        p.orderID,
		CustomerID:     p.customerID,
		Amount:         p.amount,
		InstrumentCode: copyString(p.instrumentCode),
		ExternalID:     copyString(p.externalID),
		Status:         p.status,
		PaidAt:         copyTime(p.paidAt),
		CreatedAt:      p.createdAt,
		UpdatedAt:      p.updatedAt,
	}
}

// AttachInstrument stores the gateway-issued code and the provider's id for
// this payment.
func (p *Payment) AttachInstrument(code, externalID string, now time.Time) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperr.Validation(ErrInvalidInstrument)
	}
	p.instrumentCode = &code
	if externalID = strings.TrimSpace(externalID); externalID != "" {
		p.externalID = &externalID
	} else {
		p.externalID = nil
	}
	p.updatedAt = now
	return nil
}

func (p *Payment) Confirm(paidAt, now time.Time) error {
	if p.status == StatusApproved {
		return errAlreadyConfirmed
	}
	p.status = StatusApproved
	p.paidAt = &paidAt
	p.updatedAt = now
	return nil
}

func (p *Payment) Reject(now time.Time) error {
	if p.status == StatusApproved {
		return errRejectApproved
	}
	p.status = StatusRejected
	p.updatedAt = now
	return nil
}

func (p *Payment) Cancel(now time.Time) error {
	if p.status == StatusApproved {
		return errCancelApproved
	}
	p.status = StatusCancelled
	p.updatedAt = now
	return nil
}

// SetStatus moves the payment to any status, back-filling paidAt when it
// becomes approved. An approved payment cannot be moved at all.
func (p *Payment) SetStatus(status Status, now time.Time) error {
	if !status.Valid() {
		return apperr.Validation(ErrInvalidStatus)
	}
	if p.status == StatusApproved {
		return errStatusLocked
	}
	p.status = status
	if status == StatusApproved && p.paidAt == nil {
		paidAt := now
		p.paidAt = &paidAt
	}
	p.updatedAt = now
	return nil
}

func (p Payment) ID() snowflake.ID { return p.id }

func (p Payment) OrderID() uuid.UUID { return p.orderID }

func (p Payment) CustomerID() snowflake.ID { return p.customerID }

func (p Payment) Amount() decimal.Decimal { return p.amount }

func (p Payment) Status() Status { return p.status }

func (p Payment) CreatedAt() time.Time { return p.createdAt }

func (p Payment) UpdatedAt() time.Time { return p.updatedAt }

func (p Payment) InstrumentCode() (string, bool) {
	if p.instrumentCode == nil {
		return "", false
	}
	return *p.instrumentCode, true
}

func (p Payment) ExternalID() (string, bool) {
	if p.externalID == nil {
		return "", false
	}
	return *p.externalID, true
}

func (p Payment) PaidAt() (time.Time, bool) {
	if p.paidAt == nil {
		return time.Time{}, false
	}
	return *p.paidAt, true
}

// Description is the human-readable label sent to the gateway.
func (p Payment) Description() string {
	return Description(p.orderID)
}

func Description(orderID uuid.UUID) string {
	return "Pagamento Pedido #" + orderID.String()
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
