package domain

import (
	"context"
	"errors"
	"net/http"
)

const (
	DefaultUnprocessedLimit = 100
	MaxUnprocessedLimit     = 100
)

type IngestRequest struct {
	Provider string
	Payload  []byte
	Headers  http.Header
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeIgnored   Outcome = "ignored"
)

type IngestResult struct {
	EventID   string
	Outcome   Outcome
	PaymentID string
}

type Service interface {
	// Ingest records the notification, authenticates it with the provider
	// and applies it to the matching payment.
	Ingest(context.Context, IngestRequest) (IngestResult, error)
	ListUnprocessed(ctx context.Context, limit int) ([]WebhookEvent, error)
}

var (
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrUnknownProvider  = errors.New("unknown_provider")
	ErrInvalidSignature = errors.New("invalid_signature")
)
