package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/apperr"
)

const maxEventTypeLength = 100

// WebhookEvent is the inbound notification log entry. MarkProcessed clears
// any error and RecordError clears the processed flag, so the latest
// outcome always wins.
type WebhookEvent struct {
	id          snowflake.ID
	provider    string
	eventType   string
	payload     string
	processed   bool
	processedAt *time.Time
	err         *string
	paymentID   *snowflake.ID
	receivedAt  time.Time
}

func NewWebhookEvent(id snowflake.ID, provider, eventType, payload string, now time.Time) (*WebhookEvent, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" || utf8.RuneCountInString(eventType) > maxEventTypeLength {
		return nil, apperr.Validation(ErrInvalidEventType)
	}
	if strings.TrimSpace(payload) == "" {
		return nil, apperr.Validation(ErrInvalidPayload)
	}

	return &WebhookEvent{
		id:         id,
		provider:   strings.ToLower(strings.TrimSpace(provider)),
		eventType:  eventType,
		payload:    payload,
		receivedAt: now,
	}, nil
}

type WebhookEventState struct {
	ID          snowflake.ID
	Provider    string
	EventType   string
	Payload     string
	Processed   bool
	ProcessedAt *time.Time
	Error       *string
	PaymentID   *snowflake.ID
	ReceivedAt  time.Time
}

func RestoreWebhookEvent(s WebhookEventState) *WebhookEvent {
	return &WebhookEvent{
		id:          s.ID,
		provider:    s.Provider,
		eventType:   s.EventType,
		payload:     s.Payload,
		processed:   s.Processed,
		processedAt: s.ProcessedAt,
		err:         s.Error,
		paymentID:   s.PaymentID,
		receivedAt:  s.ReceivedAt,
	}
}

func (e WebhookEvent) State() WebhookEventState {
	return WebhookEventState{
		ID:          e.id,
		Provider:    e.provider,
		EventType:   e.eventType,
		Payload:     e.payload,
		Processed:   e.processed,
		ProcessedAt: e.processedAt,
		Error:       e.err,
		PaymentID:   e.paymentID,
		ReceivedAt:  e.receivedAt,
	}
}

// MarkProcessed links the event to the payment it affected, if any.
func (e *WebhookEvent) MarkProcessed(paymentID *snowflake.ID, now time.Time) {
	e.processed = true
	e.paymentID = paymentID
	e.processedAt = &now
	e.err = nil
}

func (e *WebhookEvent) RecordError(message string, now time.Time) {
	e.processed = false
	e.err = &message
	e.processedAt = &now
}

func (e WebhookEvent) ID() snowflake.ID { return e.id }

func (e WebhookEvent) Provider() string { return e.provider }

func (e WebhookEvent) EventType() string { return e.eventType }

func (e WebhookEvent) Payload() string { return e.payload }

func (e WebhookEvent) Processed() bool { return e.processed }

func (e WebhookEvent) ReceivedAt() time.Time { return e.receivedAt }

func (e WebhookEvent) ProcessedAt() (time.Time, bool) {
	if e.processedAt == nil {
		return time.Time{}, false
	}
	return *e.processedAt, true
}

func (e WebhookEvent) Error() (string, bool) {
	if e.err == nil {
		return "", false
	}
	return *e.err, true
}

func (e WebhookEvent) PaymentID() (snowflake.ID, bool) {
	if e.paymentID == nil {
		return 0, false
	}
	return *e.paymentID, true
}
