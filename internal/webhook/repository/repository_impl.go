package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type webhookEventRow struct {
	ID          snowflake.ID  `gorm:"column:id"`
	Provider    string        `gorm:"column:provider"`
	EventType   string        `gorm:"column:event_type"`
	Payload     string        `gorm:"column:payload"`
	Processed   bool          `gorm:"column:processed"`
	ProcessedAt *time.Time    `gorm:"column:processed_at"`
	Error       *string       `gorm:"column:error"`
	PaymentID   *snowflake.ID `gorm:"column:payment_id"`
	ReceivedAt  time.Time     `gorm:"column:received_at"`
}

func (r webhookEventRow) toDomain() *domain.WebhookEvent {
	return domain.RestoreWebhookEvent(domain.WebhookEventState(r))
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	s := event.State()
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, event_type, payload, processed, processed_at, error, payment_id, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Provider,
		s.EventType,
		s.Payload,
		s.Processed,
		s.ProcessedAt,
		s.Error,
		s.PaymentID,
		s.ReceivedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	s := event.State()
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = ?, processed_at = ?, error = ?, payment_id = ?
		 WHERE id = ?`,
		s.Processed,
		s.ProcessedAt,
		s.Error,
		s.PaymentID,
		s.ID,
	).Error
}

func (r *repo) ListUnprocessed(ctx context.Context, db *gorm.DB, limit int) ([]*domain.WebhookEvent, error) {
	var rows []webhookEventRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, event_type, payload, processed, processed_at, error, payment_id, received_at
		 FROM webhook_events
		 WHERE processed = ?
		 ORDER BY received_at ASC, id ASC
		 LIMIT ?`,
		false,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]*domain.WebhookEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toDomain())
	}
	return events, nil
}
