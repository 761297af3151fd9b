package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/qrpay/internal/outbox/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, event_type, aggregate_id, payload, published, published_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.EventType,
		event.AggregateID,
		event.Payload,
		event.Published,
		event.PublishedAt,
		event.CreatedAt,
	).Error
}

func (r *repo) ListUnpublished(ctx context.Context, db *gorm.DB, limit int) ([]domain.Event, error) {
	var items []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_type, aggregate_id, payload, published, published_at, created_at
		 FROM outbox_events
		 WHERE published = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		false,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkPublished(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET published = ?, published_at = ? WHERE id IN ?`,
		true,
		at,
		ids,
	).Error
}
