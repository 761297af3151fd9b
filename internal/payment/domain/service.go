package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/qrpay/internal/apperr"
)

type CreatePaymentRequest struct {
	OrderID            string
	CustomerID         string
	Amount             decimal.Decimal
	GenerateInstrument bool
}

type ConfirmPaymentRequest struct {
	ExternalID  string
	ConfirmedAt time.Time
}

type SetStatusRequest struct {
	ID     string
	Status string
}

// PaymentDetails is a payment plus the display name of its customer.
type PaymentDetails struct {
	Payment      Payment
	CustomerName string
}

type Service interface {
	Create(context.Context, CreatePaymentRequest) (Payment, error)
	AttachInstrument(ctx context.Context, id string) (Payment, error)
	GetByID(ctx context.Context, id string) (Payment, error)
	GetDisplay(ctx context.Context, id string) (PaymentDetails, error)
	GetByOrderID(ctx context.Context, orderID string) (Payment, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Payment, error)
	ListByStatus(ctx context.Context, status string) ([]Payment, error)
	Confirm(context.Context, ConfirmPaymentRequest) (Payment, error)
	Reject(ctx context.Context, externalID string) (Payment, error)
	Cancel(ctx context.Context, id string) (Payment, error)
	CancelByExternalID(ctx context.Context, externalID string) (Payment, error)
	SetStatus(context.Context, SetStatusRequest) (Payment, error)
	QueryProviderStatus(ctx context.Context, id string) (ProviderStatus, error)
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidOrderID     = errors.New("invalid_order_id")
	ErrInvalidCustomerID  = errors.New("invalid_customer_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidInstrument  = errors.New("invalid_instrument")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidExternalID  = errors.New("invalid_external_id")
	ErrNotFound           = errors.New("not_found")
	ErrMissingExternalID  = errors.New("missing_external_id")
	ErrDuplicateOrder     = errors.New("duplicate_order")
	ErrAlreadyConfirmed   = errors.New("already_confirmed")
	ErrPaymentApproved    = errors.New("payment_approved")
	ErrInstrumentAttached = errors.New("instrument_attached")
	ErrNotPending         = errors.New("not_pending")
	ErrGatewayFailed      = errors.New("gateway_failed")
)

var (
	errAmountNotPositive = apperr.New(apperr.KindValidation, ErrInvalidAmount, "amount must be greater than zero")
	errAmountTooLarge    = apperr.New(apperr.KindValidation, ErrInvalidAmount, "amount exceeds the supported maximum")
	errAlreadyConfirmed  = apperr.Conflict(ErrAlreadyConfirmed, "payment already confirmed")
	errRejectApproved    = apperr.Conflict(ErrPaymentApproved, "cannot reject an approved payment")
	errCancelApproved    = apperr.Conflict(ErrPaymentApproved, "cannot cancel an approved payment")
	errStatusLocked      = apperr.Conflict(ErrPaymentApproved, "cannot change the status of an approved payment")
)
