package domain

import (
	"errors"
	"net/http"
	"time"
)

// Notification is a provider webhook reduced to what the payment state
// machine needs. Status is empty when the provider only announces that
// something changed.
type Notification struct {
	ExternalID string
	EventType  string
	Status     string
	OccurredAt time.Time
}

// NotificationParser authenticates and decodes provider webhooks.
type NotificationParser interface {
	Verify(payload []byte, headers http.Header) error
	ParseNotification(payload []byte) (Notification, error)
}

// Provider is a gateway that also receives webhooks.
type Provider interface {
	Gateway
	NotificationParser
}

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrEventIgnored     = errors.New("event_ignored")
)

// Provider-side statuses shared by the supported gateways.
const (
	ProviderStatusPending    = "pending"
	ProviderStatusInProcess  = "in_process"
	ProviderStatusApproved   = "approved"
	ProviderStatusRejected   = "rejected"
	ProviderStatusCancelled  = "cancelled"
	ProviderStatusRefunded   = "refunded"
	ProviderStatusChargeBack = "charged_back"
)
