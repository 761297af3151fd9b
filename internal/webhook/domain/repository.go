package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *WebhookEvent) error
	Update(ctx context.Context, db *gorm.DB, event *WebhookEvent) error
	// ListUnprocessed returns the oldest unprocessed events first.
	ListUnprocessed(ctx context.Context, db *gorm.DB, limit int) ([]*WebhookEvent, error)
}
